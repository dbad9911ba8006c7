package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/portfoliocms/assetsync/internal/modules/model"
	"github.com/portfoliocms/assetsync/internal/modules/repo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	ReorderTransactional = "transactional"
	ReorderParallel      = "parallel"
)

type ReorderService interface {
	// Persist gives each id its 1-based index in ids as the new ordering.
	Persist(ctx context.Context, category model.Category, ids []uuid.UUID) error
	// Compact renumbers the category to 1..N and returns how many rows moved.
	Compact(ctx context.Context, category model.Category) (int, error)
}

type reorderService struct {
	r    repo.AssetRepo
	mode string
	log  *zap.Logger
}

func NewReorderService(r repo.AssetRepo, mode string, log *zap.Logger) (ReorderService, error) {
	switch mode {
	case "":
		mode = ReorderTransactional
	case ReorderTransactional, ReorderParallel:
	default:
		return nil, fmt.Errorf("unknown reorder mode %q", mode)
	}
	return &reorderService{r: r, mode: mode, log: log}, nil
}

func (s *reorderService) Persist(ctx context.Context, category model.Category, ids []uuid.UUID) error {
	if err := checkUnique(ids); err != nil {
		return err
	}
	if s.mode == ReorderParallel {
		return s.persistParallel(ctx, category, ids)
	}

	if _, err := s.r.ReorderCategory(ctx, category, ids); err != nil {
		return fmt.Errorf("%w: %w", ErrReorderPersist, err)
	}
	return nil
}

// persistParallel issues one update per id with no transaction around them.
// On failure the rows that did update keep their new position.
func (s *reorderService) persistParallel(ctx context.Context, category model.Category, ids []uuid.UUID) error {
	var (
		mu     sync.Mutex
		failed = make(map[uuid.UUID]error)
		g      errgroup.Group
	)
	for i, id := range ids {
		g.Go(func() error {
			if err := s.r.UpdateOrdering(ctx, id, int64(i+1)); err != nil {
				mu.Lock()
				failed[id] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) == 0 {
		return nil
	}
	s.log.Warn("partial reorder",
		zap.String("category", string(category)),
		zap.Int("rows", len(ids)),
		zap.Int("failed", len(failed)))
	return &ReorderError{Category: category, Failed: failed}
}

func (s *reorderService) Compact(ctx context.Context, category model.Category) (int, error) {
	return s.r.CompactCategory(ctx, category)
}

func checkUnique(ids []uuid.UUID) error {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateIDs, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// IsMismatch reports whether a reorder was rejected because the ids were not
// the current set of ordered assets.
func IsMismatch(err error) bool {
	return errors.Is(err, repo.ErrOrderMismatch)
}
