package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/portfoliocms/assetsync/internal/infra/blob"
	"github.com/portfoliocms/assetsync/internal/infra/changefeed"
	"github.com/portfoliocms/assetsync/internal/modules/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ObjectStore is the object storage the repository writes asset bodies to.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) (*blob.UploadedMeta, error)
	Delete(ctx context.Context, bucket, key string) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	List(ctx context.Context, bucket, prefix string) ([]blob.ObjectInfo, error)
	PresignGet(ctx context.Context, bucket, key string) (string, error)
	PublicURL(bucket, key string) string
}

type CreateAssetMeta struct {
	Bucket      string
	Key         string
	FileName    string
	ContentType string
	Category    model.Category
	Ordering    int64
	Usage       string
}

type ListFilter struct {
	Category *model.Category
	Usage    string
	IDs      []uuid.UUID
	Offset   int
	Limit    int
}

// AssetRepo is the only path to the assets table and the objects behind it.
// Storage and database writes are not covered by one transaction.
type AssetRepo interface {
	CreateAsset(ctx context.Context, body []byte, meta CreateAssetMeta) (*model.Asset, error)
	DeleteAsset(ctx context.Context, id uuid.UUID) (*model.Asset, error)
	UpdateOrdering(ctx context.Context, id uuid.UUID, ordering int64) error
	UpdateMetadata(ctx context.Context, id uuid.UUID, fields model.MetadataFields) (*model.Asset, error)
	MaxOrdering(ctx context.Context, category model.Category) (int64, error)
	ReorderCategory(ctx context.Context, category model.Category, ids []uuid.UUID) ([]model.Asset, error)
	CompactCategory(ctx context.Context, category model.Category) (int, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Asset, error)
	List(ctx context.Context, f ListFilter) ([]model.Asset, int64, error)
	Download(ctx context.Context, id uuid.UUID) ([]byte, *model.Asset, error)
	PresignDownload(ctx context.Context, id uuid.UUID) (string, error)
	FilePaths(ctx context.Context, bucket string) (map[string]struct{}, error)
	ListObjects(ctx context.Context, bucket, prefix string) ([]blob.ObjectInfo, error)
	DeleteObject(ctx context.Context, bucket, key string) error
}

type assetRepo struct {
	db    *gorm.DB
	store ObjectStore
	feed  changefeed.Publisher
	log   *zap.Logger
}

func NewAssetRepo(db *gorm.DB, store ObjectStore, feed changefeed.Publisher, log *zap.Logger) AssetRepo {
	return &assetRepo{db: db, store: store, feed: feed, log: log}
}

func (r *assetRepo) CreateAsset(ctx context.Context, body []byte, meta CreateAssetMeta) (*model.Asset, error) {
	if _, err := r.store.Put(ctx, meta.Bucket, meta.Key, body, meta.ContentType); err != nil {
		return nil, opErr(ErrStorageWrite, meta.FileName, err)
	}

	fullPath := blob.FullPath(meta.Bucket, meta.Key)
	a := &model.Asset{
		FileName: meta.FileName,
		Category: meta.Category,
		Ordering: meta.Ordering,
		Usage:    meta.Usage,
		URL:      r.store.PublicURL(meta.Bucket, meta.Key),
		FilePath: &fullPath,
	}
	if err := r.db.WithContext(ctx).Create(a).Error; err != nil {
		// Best effort: the caller may be gone, so do not inherit its cancellation.
		if derr := r.store.Delete(context.WithoutCancel(ctx), meta.Bucket, meta.Key); derr != nil {
			r.log.Error("orphaned storage object after failed insert",
				zap.String("file_path", fullPath), zap.Error(derr))
		}
		return nil, opErr(ErrDatabaseWrite, meta.FileName, err)
	}

	r.publish(ctx, model.ChangeInsert, nil, a)
	return a, nil
}

func (r *assetRepo) DeleteAsset(ctx context.Context, id uuid.UUID) (*model.Asset, error) {
	var a model.Asset
	res := r.db.WithContext(ctx).Clauses(clause.Returning{}).Where("id = ?", id).Delete(&a)
	if res.Error != nil {
		return nil, opErr(ErrDatabaseWrite, id.String(), res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrAssetNotFound
	}
	r.publish(ctx, model.ChangeDelete, &a, nil)

	if a.FilePath == nil || *a.FilePath == "" {
		return &a, nil
	}
	bucket, key, err := blob.SplitFullPath(*a.FilePath)
	if err != nil {
		return &a, opErr(ErrDeleteCompensation, id.String(), err)
	}
	if err := r.store.Delete(ctx, bucket, key); err != nil {
		return &a, opErr(ErrDeleteCompensation, id.String(), err)
	}
	return &a, nil
}

func (r *assetRepo) UpdateOrdering(ctx context.Context, id uuid.UUID, ordering int64) error {
	var a model.Asset
	res := r.db.WithContext(ctx).Model(&a).Clauses(clause.Returning{}).
		Where("id = ?", id).
		Updates(map[string]any{"ordering": ordering, "updated_at": time.Now()})
	if res.Error != nil {
		return opErr(ErrDatabaseWrite, id.String(), res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAssetNotFound
	}
	r.publish(ctx, model.ChangeUpdate, nil, &a)
	return nil
}

func (r *assetRepo) UpdateMetadata(ctx context.Context, id uuid.UUID, fields model.MetadataFields) (*model.Asset, error) {
	updates := map[string]any{"updated_at": time.Now()}
	if fields.FileName != nil {
		updates["file_name"] = *fields.FileName
	}
	if fields.Usage != nil {
		updates["usage"] = *fields.Usage
	}

	var a model.Asset
	res := r.db.WithContext(ctx).Model(&a).Clauses(clause.Returning{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, opErr(ErrDatabaseWrite, id.String(), res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrAssetNotFound
	}
	r.publish(ctx, model.ChangeUpdate, nil, &a)
	return &a, nil
}

func (r *assetRepo) MaxOrdering(ctx context.Context, category model.Category) (int64, error) {
	var a model.Asset
	err := r.db.WithContext(ctx).
		Select("ordering").
		Where("category = ?", category).
		Order("ordering DESC").
		Limit(1).
		Take(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return a.Ordering, nil
}

// ReorderCategory rewrites the ordering of every non-sentinel asset of the
// category to its 1-based index in ids, inside one transaction. ids must be
// exactly the current set of ordered assets.
func (r *assetRepo) ReorderCategory(ctx context.Context, category model.Category, ids []uuid.UUID) ([]model.Asset, error) {
	var before, after []model.Asset
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("category = ? AND ordering <> ?", category, model.SentinelOrdering).
			Find(&before).Error; err != nil {
			return err
		}
		if !sameIDSet(before, ids) {
			return ErrOrderMismatch
		}

		byID := make(map[uuid.UUID]model.Asset, len(before))
		for _, a := range before {
			byID[a.ID] = a
		}

		now := time.Now()
		after = make([]model.Asset, 0, len(ids))
		for i, id := range ids {
			a := byID[id]
			pos := int64(i + 1)
			if a.Ordering != pos {
				if err := tx.Model(&model.Asset{}).Where("id = ?", id).
					Updates(map[string]any{"ordering": pos, "updated_at": now}).Error; err != nil {
					return fmt.Errorf("update ordering of %s: %w", id, err)
				}
				a.Ordering = pos
				a.UpdatedAt = now
			}
			after = append(after, a)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrOrderMismatch) {
			return nil, err
		}
		return nil, opErr(ErrDatabaseWrite, string(category), err)
	}

	r.publishOrderChanges(ctx, before, after)
	return after, nil
}

// CompactCategory renumbers the ordered assets of a category to 1..N, keeping
// their relative order. Gaps left by deletes or failed inserts and duplicates
// from concurrent allocators are repaired here. Returns the number of rows changed.
func (r *assetRepo) CompactCategory(ctx context.Context, category model.Category) (int, error) {
	var before, after []model.Asset
	changed := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("category = ? AND ordering <> ?", category, model.SentinelOrdering).
			Order("ordering ASC, created_at ASC, id ASC").
			Find(&before).Error; err != nil {
			return err
		}

		now := time.Now()
		after = make([]model.Asset, 0, len(before))
		for i, a := range before {
			pos := int64(i + 1)
			if a.Ordering != pos {
				if err := tx.Model(&model.Asset{}).Where("id = ?", a.ID).
					Updates(map[string]any{"ordering": pos, "updated_at": now}).Error; err != nil {
					return err
				}
				a.Ordering = pos
				a.UpdatedAt = now
				changed++
			}
			after = append(after, a)
		}
		return nil
	})
	if err != nil {
		return 0, opErr(ErrDatabaseWrite, string(category), err)
	}

	r.publishOrderChanges(ctx, before, after)
	return changed, nil
}

func (r *assetRepo) Get(ctx context.Context, id uuid.UUID) (*model.Asset, error) {
	var a model.Asset
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAssetNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *assetRepo) List(ctx context.Context, f ListFilter) ([]model.Asset, int64, error) {
	query := r.db.WithContext(ctx).Model(&model.Asset{})
	if f.Category != nil {
		query = query.Where("category = ?", *f.Category)
	}
	if f.Usage != "" {
		query = query.Where("usage = ?", f.Usage)
	}
	if len(f.IDs) > 0 {
		query = query.Where("id IN ?", f.IDs)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order("ordering ASC, created_at ASC, id ASC")
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}
	if f.Offset > 0 {
		query = query.Offset(f.Offset)
	}

	var assets []model.Asset
	if err := query.Find(&assets).Error; err != nil {
		return nil, 0, err
	}
	return assets, total, nil
}

func (r *assetRepo) Download(ctx context.Context, id uuid.UUID) ([]byte, *model.Asset, error) {
	a, err := r.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	bucket, key, err := r.objectOf(a)
	if err != nil {
		return nil, nil, err
	}
	body, err := r.store.Get(ctx, bucket, key)
	if err != nil {
		return nil, nil, fmt.Errorf("get object %s: %w", *a.FilePath, err)
	}
	return body, a, nil
}

func (r *assetRepo) PresignDownload(ctx context.Context, id uuid.UUID) (string, error) {
	a, err := r.Get(ctx, id)
	if err != nil {
		return "", err
	}
	bucket, key, err := r.objectOf(a)
	if err != nil {
		return "", err
	}
	return r.store.PresignGet(ctx, bucket, key)
}

func (r *assetRepo) FilePaths(ctx context.Context, bucket string) (map[string]struct{}, error) {
	var paths []string
	err := r.db.WithContext(ctx).Model(&model.Asset{}).
		Where("file_path LIKE ?", escapeLike(bucket)+"/%").
		Pluck("file_path", &paths).Error
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return set, nil
}

func (r *assetRepo) ListObjects(ctx context.Context, bucket, prefix string) ([]blob.ObjectInfo, error) {
	return r.store.List(ctx, bucket, prefix)
}

func (r *assetRepo) DeleteObject(ctx context.Context, bucket, key string) error {
	return r.store.Delete(ctx, bucket, key)
}

func (r *assetRepo) objectOf(a *model.Asset) (string, string, error) {
	if a.FilePath == nil {
		return "", "", fmt.Errorf("asset %s has no stored object", a.ID)
	}
	return blob.SplitFullPath(*a.FilePath)
}

// publish emits a change event. The row write already happened, so a feed
// failure is logged and not returned.
func (r *assetRepo) publish(ctx context.Context, t model.ChangeType, old, new *model.Asset) {
	if r.feed == nil {
		return
	}
	if err := r.feed.Publish(ctx, model.NewChangeEvent(t, old, new)); err != nil {
		r.log.Warn("publish change event", zap.String("event", string(t)), zap.Error(err))
	}
}

func (r *assetRepo) publishOrderChanges(ctx context.Context, before, after []model.Asset) {
	prev := make(map[uuid.UUID]model.Asset, len(before))
	for _, a := range before {
		prev[a.ID] = a
	}
	for i := range after {
		old, ok := prev[after[i].ID]
		if ok && old.Ordering == after[i].Ordering {
			continue
		}
		row := after[i]
		r.publish(ctx, model.ChangeUpdate, &old, &row)
	}
}

func sameIDSet(rows []model.Asset, ids []uuid.UUID) bool {
	if len(rows) != len(ids) {
		return false
	}
	want := make(map[uuid.UUID]struct{}, len(rows))
	for _, a := range rows {
		want[a.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := want[id]; !ok {
			return false
		}
		delete(want, id)
	}
	return len(want) == 0
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
