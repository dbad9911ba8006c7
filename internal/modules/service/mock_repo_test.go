package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/portfoliocms/assetsync/internal/infra/blob"
	"github.com/portfoliocms/assetsync/internal/modules/model"
	"github.com/portfoliocms/assetsync/internal/modules/repo"
	"github.com/stretchr/testify/mock"
)

// MockAssetRepo is a mock implementation of repo.AssetRepo.
// CreateAsset also accepts a func(repo.CreateAssetMeta) *model.Asset as its
// first return value so a test can build the row from the request.
type MockAssetRepo struct {
	mock.Mock
}

var _ repo.AssetRepo = (*MockAssetRepo)(nil)

func (m *MockAssetRepo) CreateAsset(ctx context.Context, body []byte, meta repo.CreateAssetMeta) (*model.Asset, error) {
	args := m.Called(ctx, body, meta)
	if fn, ok := args.Get(0).(func(repo.CreateAssetMeta) *model.Asset); ok {
		return fn(meta), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Asset), args.Error(1)
}

func (m *MockAssetRepo) DeleteAsset(ctx context.Context, id uuid.UUID) (*model.Asset, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Asset), args.Error(1)
}

func (m *MockAssetRepo) UpdateOrdering(ctx context.Context, id uuid.UUID, ordering int64) error {
	args := m.Called(ctx, id, ordering)
	return args.Error(0)
}

func (m *MockAssetRepo) UpdateMetadata(ctx context.Context, id uuid.UUID, fields model.MetadataFields) (*model.Asset, error) {
	args := m.Called(ctx, id, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Asset), args.Error(1)
}

func (m *MockAssetRepo) MaxOrdering(ctx context.Context, category model.Category) (int64, error) {
	args := m.Called(ctx, category)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAssetRepo) ReorderCategory(ctx context.Context, category model.Category, ids []uuid.UUID) ([]model.Asset, error) {
	args := m.Called(ctx, category, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Asset), args.Error(1)
}

func (m *MockAssetRepo) CompactCategory(ctx context.Context, category model.Category) (int, error) {
	args := m.Called(ctx, category)
	return args.Int(0), args.Error(1)
}

func (m *MockAssetRepo) Get(ctx context.Context, id uuid.UUID) (*model.Asset, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Asset), args.Error(1)
}

func (m *MockAssetRepo) List(ctx context.Context, f repo.ListFilter) ([]model.Asset, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]model.Asset), args.Get(1).(int64), args.Error(2)
}

func (m *MockAssetRepo) Download(ctx context.Context, id uuid.UUID) ([]byte, *model.Asset, error) {
	args := m.Called(ctx, id)
	if args.Get(1) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).([]byte), args.Get(1).(*model.Asset), args.Error(2)
}

func (m *MockAssetRepo) PresignDownload(ctx context.Context, id uuid.UUID) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

func (m *MockAssetRepo) FilePaths(ctx context.Context, bucket string) (map[string]struct{}, error) {
	args := m.Called(ctx, bucket)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]struct{}), args.Error(1)
}

func (m *MockAssetRepo) ListObjects(ctx context.Context, bucket, prefix string) ([]blob.ObjectInfo, error) {
	args := m.Called(ctx, bucket, prefix)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]blob.ObjectInfo), args.Error(1)
}

func (m *MockAssetRepo) DeleteObject(ctx context.Context, bucket, key string) error {
	args := m.Called(ctx, bucket, key)
	return args.Error(0)
}

func newAssetFrom(meta repo.CreateAssetMeta) *model.Asset {
	fp := blob.FullPath(meta.Bucket, meta.Key)
	return &model.Asset{
		ID:       uuid.New(),
		FileName: meta.FileName,
		Category: meta.Category,
		Ordering: meta.Ordering,
		Usage:    meta.Usage,
		URL:      "http://cdn.local/" + fp,
		FilePath: &fp,
	}
}
