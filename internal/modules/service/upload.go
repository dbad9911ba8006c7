package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/portfoliocms/assetsync/internal/modules/model"
	"github.com/portfoliocms/assetsync/internal/modules/repo"
	"github.com/portfoliocms/assetsync/internal/pkg/utils/mime"
	"github.com/portfoliocms/assetsync/internal/pkg/utils/path"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type UploadFile struct {
	Name string
	// MIME as declared by the client. Empty or application/octet-stream is sniffed.
	MIME string
	Body []byte
	// Usage is stored as-is on the row.
	Usage string
	// Unordered files get the sentinel ordering and are left out of the category sequence.
	Unordered bool
}

type UploadBatchInput struct {
	Bucket string
	Files  []UploadFile
}

// FileResult is the outcome for the file at Index of the input. Exactly one
// of Asset and Err is set.
type FileResult struct {
	Index    int
	Name     string
	Category model.Category
	Asset    *model.Asset
	Err      error
}

type BatchResult struct {
	Results []FileResult
}

func (b *BatchResult) Succeeded() []FileResult {
	out := make([]FileResult, 0, len(b.Results))
	for _, r := range b.Results {
		if r.Err == nil {
			out = append(out, r)
		}
	}
	return out
}

func (b *BatchResult) Failed() []FileResult {
	out := make([]FileResult, 0)
	for _, r := range b.Results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

type UploadConfig struct {
	DefaultBucket string
	// MaxConcurrency bounds the in-flight file pipelines. 0 means unbounded.
	MaxConcurrency int
}

type UploadService interface {
	UploadBatch(ctx context.Context, in UploadBatchInput) (*BatchResult, error)
}

type uploadService struct {
	r     repo.AssetRepo
	alloc OrderAllocator
	cfg   UploadConfig
	log   *zap.Logger
	now   func() time.Time
}

func NewUploadService(r repo.AssetRepo, alloc OrderAllocator, cfg UploadConfig, log *zap.Logger) UploadService {
	return &uploadService{r: r, alloc: alloc, cfg: cfg, log: log, now: time.Now}
}

// plannedFile is everything a pipeline needs, decided before any I/O.
type plannedFile struct {
	index int
	file  UploadFile
	meta  repo.CreateAssetMeta
}

// UploadBatch stores every file and inserts its row. Files are independent:
// a failure is recorded on that file's result and never stops the others.
// The returned error is only for input that cannot be processed at all.
func (s *uploadService) UploadBatch(ctx context.Context, in UploadBatchInput) (*BatchResult, error) {
	if len(in.Files) == 0 {
		return nil, ErrEmptyBatch
	}
	bucket := in.Bucket
	if bucket == "" {
		bucket = s.cfg.DefaultBucket
	}

	results := make([]FileResult, len(in.Files))
	plans := make([]*plannedFile, len(in.Files))
	s.plan(bucket, in.Files, results, plans)

	leases := s.allocate(ctx, plans, results)
	defer func() {
		for _, l := range leases {
			l.Release()
		}
	}()

	var g errgroup.Group
	if s.cfg.MaxConcurrency > 0 {
		g.SetLimit(s.cfg.MaxConcurrency)
	}
	for _, p := range plans {
		if p == nil {
			continue
		}
		g.Go(func() error {
			a, err := s.r.CreateAsset(ctx, p.file.Body, p.meta)
			if err != nil {
				results[p.index].Err = err
				return nil
			}
			results[p.index].Asset = a
			return nil
		})
	}
	_ = g.Wait()

	s.repair(ctx, leases, plans, results)

	res := &BatchResult{Results: results}
	s.log.Info("upload batch done",
		zap.String("bucket", bucket),
		zap.Int("files", len(results)),
		zap.Int("failed", len(res.Failed())))
	return res, nil
}

// plan classifies each file and derives its storage key. Files with an
// unusable name fail here and get no plan.
func (s *uploadService) plan(bucket string, files []UploadFile, results []FileResult, plans []*plannedFile) {
	ts := s.now()
	used := make(map[string]struct{}, len(files))
	for i, f := range files {
		results[i] = FileResult{Index: i, Name: f.Name}
		if err := path.ValidateFileName(f.Name); err != nil {
			results[i].Err = &repo.OpError{Kind: ErrInvalidFileName, Ref: f.Name, Err: err}
			continue
		}

		contentType := mime.Detect(f.Body, f.Name, f.MIME)
		category := model.CategoryFromMIME(contentType)
		results[i].Category = category

		// Two files with the same name in one batch must not share a key.
		var name, key string
		for bump := time.Duration(0); ; bump += time.Millisecond {
			name = path.TimestampedName(f.Name, ts.Add(bump))
			key = path.ObjectKey(category.Folder(), name)
			if _, taken := used[key]; !taken {
				break
			}
		}
		used[key] = struct{}{}

		plans[i] = &plannedFile{
			index: i,
			file:  f,
			meta: repo.CreateAssetMeta{
				Bucket:      bucket,
				Key:         key,
				FileName:    name,
				ContentType: contentType,
				Category:    category,
				Ordering:    model.SentinelOrdering,
				Usage:       f.Usage,
			},
		}
	}
}

// allocate takes one lease per category that has ordered files and assigns
// orderings in file-list order. When a lease cannot be taken every file of
// that category fails and its plan is dropped.
func (s *uploadService) allocate(ctx context.Context, plans []*plannedFile, results []FileResult) map[model.Category]*OrderLease {
	leases := make(map[model.Category]*OrderLease)
	failed := make(map[model.Category]error)

	for _, p := range plans {
		if p == nil || p.file.Unordered {
			continue
		}
		c := p.meta.Category
		if _, ok := leases[c]; ok {
			continue
		}
		if _, ok := failed[c]; ok {
			continue
		}
		lease, err := s.alloc.Reserve(ctx, c)
		if err != nil {
			s.log.Error("reserve ordering", zap.String("category", string(c)), zap.Error(err))
			failed[c] = err
			continue
		}
		leases[c] = lease
	}

	for i, p := range plans {
		if p == nil {
			continue
		}
		if err, ok := failed[p.meta.Category]; ok {
			results[p.index].Err = &repo.OpError{Kind: ErrOrderAllocation, Ref: p.meta.FileName, Err: err}
			plans[i] = nil
			continue
		}
		if p.file.Unordered {
			continue
		}
		p.meta.Ordering = leases[p.meta.Category].Next()
	}
	return leases
}

// repair compacts every category where an allocated ordering was not used,
// or whose lease lost exclusivity, then refreshes the surviving rows of that
// category in the results.
func (s *uploadService) repair(ctx context.Context, leases map[model.Category]*OrderLease, plans []*plannedFile, results []FileResult) {
	holes := make(map[model.Category]bool)
	for _, p := range plans {
		if p == nil || p.file.Unordered {
			continue
		}
		if results[p.index].Err != nil {
			holes[p.meta.Category] = true
		}
	}
	for c, l := range leases {
		if l.Lost() {
			s.log.Warn("ordering lease lost during upload, compacting", zap.String("category", string(c)))
			holes[c] = true
		}
	}

	for c := range holes {
		if _, ok := leases[c]; !ok {
			continue
		}
		changed, err := s.r.CompactCategory(ctx, c)
		if err != nil {
			s.log.Error("compact after failed upload", zap.String("category", string(c)), zap.Error(err))
			continue
		}
		if changed == 0 {
			continue
		}
		if err := s.refresh(ctx, c, results); err != nil {
			s.log.Warn("refresh compacted assets", zap.String("category", string(c)), zap.Error(err))
		}
	}
}

func (s *uploadService) refresh(ctx context.Context, c model.Category, results []FileResult) error {
	var ids []uuid.UUID
	for _, r := range results {
		if r.Err == nil && r.Asset != nil && r.Category == c {
			ids = append(ids, r.Asset.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	rows, _, err := s.r.List(ctx, repo.ListFilter{IDs: ids})
	if err != nil {
		return err
	}
	byID := make(map[uuid.UUID]model.Asset, len(rows))
	for _, a := range rows {
		byID[a.ID] = a
	}
	for i := range results {
		if results[i].Asset == nil {
			continue
		}
		if fresh, ok := byID[results[i].Asset.ID]; ok {
			results[i].Asset = &fresh
		}
	}
	return nil
}

// IsPartial reports whether some but not all files of the batch failed.
func IsPartial(b *BatchResult) bool {
	failed := len(b.Failed())
	return failed > 0 && failed < len(b.Results)
}

// FailedErr joins the per-file errors of a batch, or nil when all succeeded.
func FailedErr(b *BatchResult) error {
	var errs []error
	for _, r := range b.Failed() {
		errs = append(errs, r.Err)
	}
	return errors.Join(errs...)
}
