package board

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/portfoliocms/assetsync/internal/modules/model"
	"github.com/portfoliocms/assetsync/internal/modules/service"
	"go.uber.org/zap"
)

var (
	ErrReorderPending = errors.New("a reorder is already pending")
	ErrUnknownOrder   = errors.New("new order must contain exactly the displayed ids")
	ErrMoveOutOfRange = errors.New("move index out of range")
)

// Persister stores a full category order. service.ReorderService satisfies it.
type Persister interface {
	Persist(ctx context.Context, category model.Category, ids []uuid.UUID) error
}

type State int

const (
	StateStable State = iota
	StatePendingCommit
)

func (s State) String() string {
	if s == StatePendingCommit {
		return "pending_commit"
	}
	return "stable"
}

// ReorderCommand is one optimistic reorder. Previous is the board as it was
// right before the new order was shown.
type ReorderCommand struct {
	Category model.Category
	Previous []model.Asset
	Next     []model.Asset

	board   *Board
	persist Persister
}

func (c *ReorderCommand) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(c.Next))
	for i, a := range c.Next {
		ids[i] = a.ID
	}
	return ids
}

// Commit sends the new order for persistence.
func (c *ReorderCommand) Commit(ctx context.Context) error {
	if err := c.persist.Persist(ctx, c.Category, c.IDs()); err != nil {
		if !errors.Is(err, service.ErrReorderPersist) {
			err = fmt.Errorf("%w: %w", service.ErrReorderPersist, err)
		}
		return err
	}
	return nil
}

// Rollback shows Previous again.
func (c *ReorderCommand) Rollback() {
	c.board.restore(c.Previous)
}

// ReorderController applies a new order to the board at once and keeps it
// only if persistence succeeds. One reorder may be in flight at a time.
type ReorderController struct {
	board   *Board
	persist Persister
	log     *zap.Logger

	mu    sync.Mutex
	state State
}

func NewReorderController(b *Board, p Persister, log *zap.Logger) *ReorderController {
	return &ReorderController{board: b, persist: p, log: log}
}

func (c *ReorderController) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Apply shows ids as the new order, persists it, and reverts the board to
// the previous order if persisting fails.
func (c *ReorderController) Apply(ctx context.Context, ids []uuid.UUID) error {
	cmd, err := c.begin(ids)
	if err != nil {
		return err
	}

	err = cmd.Commit(ctx)
	if err != nil {
		cmd.Rollback()
		c.log.Warn("reorder rolled back",
			zap.String("category", string(cmd.Category)),
			zap.Int("rows", len(cmd.Next)),
			zap.Error(err))
	} else {
		c.board.endPending()
	}

	c.mu.Lock()
	c.state = StateStable
	c.mu.Unlock()
	return err
}

// Move drags the row at from to position to (both 0-based) and applies the result.
func (c *ReorderController) Move(ctx context.Context, from, to int) error {
	ids := c.board.IDs()
	if from < 0 || from >= len(ids) || to < 0 || to >= len(ids) {
		return fmt.Errorf("%w: %d -> %d of %d", ErrMoveOutOfRange, from, to, len(ids))
	}
	if from == to {
		return nil
	}
	id := ids[from]
	ids = slices.Delete(ids, from, from+1)
	ids = slices.Insert(ids, to, id)
	return c.Apply(ctx, ids)
}

// begin validates ids against the board, snapshots it and shows the new order.
func (c *ReorderController) begin(ids []uuid.UUID) (*ReorderCommand, error) {
	c.mu.Lock()
	if c.state == StatePendingCommit {
		c.mu.Unlock()
		return nil, ErrReorderPending
	}

	c.board.beginPending()
	prev := c.board.Snapshot()
	next, err := permute(prev, ids)
	if err != nil {
		c.board.endPending()
		c.mu.Unlock()
		return nil, err
	}
	c.state = StatePendingCommit
	c.mu.Unlock()

	// Listeners run outside c.mu so they may read State.
	c.board.show(next)
	return &ReorderCommand{
		Category: c.board.Category(),
		Previous: prev,
		Next:     next,
		board:    c.board,
		persist:  c.persist,
	}, nil
}

// permute orders rows by ids and renumbers them 1..N.
func permute(rows []model.Asset, ids []uuid.UUID) ([]model.Asset, error) {
	if len(ids) != len(rows) {
		return nil, fmt.Errorf("%w: got %d ids for %d rows", ErrUnknownOrder, len(ids), len(rows))
	}
	byID := make(map[uuid.UUID]model.Asset, len(rows))
	for _, a := range rows {
		byID[a.ID] = a
	}
	next := make([]model.Asset, 0, len(ids))
	for i, id := range ids {
		a, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownOrder, id)
		}
		delete(byID, id)
		a.Ordering = int64(i + 1)
		next = append(next, a)
	}
	return next, nil
}
