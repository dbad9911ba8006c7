package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/portfoliocms/assetsync/internal/config"
	"github.com/portfoliocms/assetsync/internal/modules/model"
	"github.com/portfoliocms/assetsync/internal/modules/service"
	"github.com/portfoliocms/assetsync/internal/pkg/paging"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

type MockAssetService struct {
	mock.Mock
}

func (m *MockAssetService) List(ctx context.Context, in service.ListAssetsInput) (*paging.Page[model.Asset], error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paging.Page[model.Asset]), args.Error(1)
}

func (m *MockAssetService) Get(ctx context.Context, id uuid.UUID) (*model.Asset, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Asset), args.Error(1)
}

func (m *MockAssetService) Download(ctx context.Context, id uuid.UUID) ([]byte, *model.Asset, error) {
	args := m.Called(ctx, id)
	if args.Get(1) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).([]byte), args.Get(1).(*model.Asset), args.Error(2)
}

func (m *MockAssetService) PresignDownload(ctx context.Context, id uuid.UUID) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

func (m *MockAssetService) UpdateMetadata(ctx context.Context, id uuid.UUID, fields model.MetadataFields) (*model.Asset, error) {
	args := m.Called(ctx, id, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Asset), args.Error(1)
}

func (m *MockAssetService) Delete(ctx context.Context, id uuid.UUID) (*model.Asset, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Asset), args.Error(1)
}

type MockUploadService struct {
	mock.Mock
}

func (m *MockUploadService) UploadBatch(ctx context.Context, in service.UploadBatchInput) (*service.BatchResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.BatchResult), args.Error(1)
}

type MockReorderService struct {
	mock.Mock
}

func (m *MockReorderService) Persist(ctx context.Context, category model.Category, ids []uuid.UUID) error {
	args := m.Called(ctx, category, ids)
	return args.Error(0)
}

func (m *MockReorderService) Compact(ctx context.Context, category model.Category) (int, error) {
	args := m.Called(ctx, category)
	return args.Int(0), args.Error(1)
}

type MockJanitorService struct {
	mock.Mock
}

func (m *MockJanitorService) SweepOrphans(ctx context.Context, bucket string) (*service.SweepReport, error) {
	args := m.Called(ctx, bucket)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SweepReport), args.Error(1)
}

func (m *MockJanitorService) Run(ctx context.Context, bucket string, every time.Duration) {
	m.Called(ctx, bucket, every)
}

type mocks struct {
	assets  *MockAssetService
	uploads *MockUploadService
	reorder *MockReorderService
	janitor *MockJanitorService
}

func (m mocks) assertExpectations(t *testing.T) {
	m.assets.AssertExpectations(t)
	m.uploads.AssertExpectations(t)
	m.reorder.AssertExpectations(t)
	m.janitor.AssertExpectations(t)
}

func newTestApp() (*App, mocks) {
	m := mocks{
		assets:  &MockAssetService{},
		uploads: &MockUploadService{},
		reorder: &MockReorderService{},
		janitor: &MockJanitorService{},
	}
	app := &App{
		Config:  &config.Config{S3: config.S3Cfg{Bucket: "assets"}},
		Log:     zap.NewNop(),
		Assets:  m.assets,
		Uploads: m.uploads,
		Reorder: m.reorder,
		Janitor: m.janitor,
	}
	return app, m
}

// execute runs the command tree against app and returns everything written.
func execute(app *App, args ...string) (string, error) {
	var out bytes.Buffer
	root := NewRootCmd(func(string) (*App, error) { return app, nil })
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}
