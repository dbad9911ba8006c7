package service

import (
	"context"
	"time"

	"github.com/portfoliocms/assetsync/internal/infra/blob"
	"github.com/portfoliocms/assetsync/internal/modules/model"
	"github.com/portfoliocms/assetsync/internal/modules/repo"
	"go.uber.org/zap"
)

type SweepReport struct {
	Scanned int      `json:"scanned"`
	Deleted []string `json:"deleted"`
	Failed  []string `json:"failed"`
}

// JanitorService removes stored objects no row points at. Those are left
// behind when an insert fails and its compensating delete fails too.
type JanitorService interface {
	SweepOrphans(ctx context.Context, bucket string) (*SweepReport, error)
	Run(ctx context.Context, bucket string, every time.Duration)
}

type janitorService struct {
	r     repo.AssetRepo
	grace time.Duration
	log   *zap.Logger
	now   func() time.Time
}

// NewJanitorService keeps objects younger than grace, so an upload whose row
// is still being inserted is never swept.
func NewJanitorService(r repo.AssetRepo, grace time.Duration, log *zap.Logger) JanitorService {
	return &janitorService{r: r, grace: grace, log: log, now: time.Now}
}

func (s *janitorService) SweepOrphans(ctx context.Context, bucket string) (*SweepReport, error) {
	// Objects are listed before rows so a row inserted in between is seen.
	var objects []blob.ObjectInfo
	for _, c := range model.Categories() {
		objs, err := s.r.ListObjects(ctx, bucket, c.Folder()+"/")
		if err != nil {
			return nil, err
		}
		objects = append(objects, objs...)
	}

	known, err := s.r.FilePaths(ctx, bucket)
	if err != nil {
		return nil, err
	}

	report := &SweepReport{Scanned: len(objects), Deleted: []string{}, Failed: []string{}}
	cutoff := s.now().Add(-s.grace)
	for _, o := range objects {
		full := blob.FullPath(bucket, o.Key)
		if _, ok := known[full]; ok {
			continue
		}
		if o.LastModified.After(cutoff) {
			continue
		}
		if err := s.r.DeleteObject(ctx, bucket, o.Key); err != nil {
			s.log.Warn("delete orphan", zap.String("file_path", full), zap.Error(err))
			report.Failed = append(report.Failed, full)
			continue
		}
		report.Deleted = append(report.Deleted, full)
	}

	if len(report.Deleted) > 0 || len(report.Failed) > 0 {
		s.log.Info("orphan sweep",
			zap.String("bucket", bucket),
			zap.Int("scanned", report.Scanned),
			zap.Int("deleted", len(report.Deleted)),
			zap.Int("failed", len(report.Failed)))
	}
	return report, nil
}

// Run sweeps every interval until ctx is done.
func (s *janitorService) Run(ctx context.Context, bucket string, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.SweepOrphans(ctx, bucket); err != nil {
				s.log.Error("orphan sweep", zap.Error(err))
			}
		}
	}
}
