package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/portfoliocms/assetsync/internal/modules/model"
	"github.com/portfoliocms/assetsync/internal/modules/repo"
	"github.com/portfoliocms/assetsync/internal/pkg/paging"
	"go.uber.org/zap"
)

type ListAssetsInput struct {
	Category *model.Category
	Usage    string
	IDs      []uuid.UUID
	paging.Params
}

type AssetService interface {
	List(ctx context.Context, in ListAssetsInput) (*paging.Page[model.Asset], error)
	Get(ctx context.Context, id uuid.UUID) (*model.Asset, error)
	Download(ctx context.Context, id uuid.UUID) ([]byte, *model.Asset, error)
	PresignDownload(ctx context.Context, id uuid.UUID) (string, error)
	UpdateMetadata(ctx context.Context, id uuid.UUID, fields model.MetadataFields) (*model.Asset, error)
	Delete(ctx context.Context, id uuid.UUID) (*model.Asset, error)
}

type assetService struct {
	r   repo.AssetRepo
	log *zap.Logger
}

func NewAssetService(r repo.AssetRepo, log *zap.Logger) AssetService {
	return &assetService{r: r, log: log}
}

func (s *assetService) List(ctx context.Context, in ListAssetsInput) (*paging.Page[model.Asset], error) {
	p := in.Params.Normalize()
	items, total, err := s.r.List(ctx, repo.ListFilter{
		Category: in.Category,
		Usage:    in.Usage,
		IDs:      in.IDs,
		Offset:   p.Offset(),
		Limit:    p.Limit(),
	})
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	page := paging.NewPage(items, total, p)
	return &page, nil
}

func (s *assetService) Get(ctx context.Context, id uuid.UUID) (*model.Asset, error) {
	return s.r.Get(ctx, id)
}

func (s *assetService) Download(ctx context.Context, id uuid.UUID) ([]byte, *model.Asset, error) {
	return s.r.Download(ctx, id)
}

func (s *assetService) PresignDownload(ctx context.Context, id uuid.UUID) (string, error) {
	return s.r.PresignDownload(ctx, id)
}

func (s *assetService) UpdateMetadata(ctx context.Context, id uuid.UUID, fields model.MetadataFields) (*model.Asset, error) {
	if fields.Empty() {
		return nil, ErrEmptyMetadata
	}
	if fields.FileName != nil && strings.TrimSpace(*fields.FileName) == "" {
		return nil, ErrInvalidFileName
	}
	return s.r.UpdateMetadata(ctx, id, fields)
}

// Delete removes the row, then the object, then closes the gap the row left
// in its category. A failed compaction is logged; the delete itself stands.
func (s *assetService) Delete(ctx context.Context, id uuid.UUID) (*model.Asset, error) {
	a, err := s.r.DeleteAsset(ctx, id)
	if a == nil {
		return nil, err
	}
	if !a.IsSentinel() {
		if _, cerr := s.r.CompactCategory(ctx, a.Category); cerr != nil {
			s.log.Warn("compact after delete", zap.String("id", id.String()), zap.Error(cerr))
		}
	}
	return a, err
}
