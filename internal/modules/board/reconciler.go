package board

import (
	"context"
	"errors"
	"sync"

	"github.com/portfoliocms/assetsync/internal/infra/changefeed"
	"github.com/portfoliocms/assetsync/internal/modules/model"
	"go.uber.org/zap"
)

var ErrReconcilerRunning = errors.New("reconciler already started")

// Reconciler removes rows from a board when the change feed reports them
// deleted elsewhere. Inserts and updates are left to the next reload.
type Reconciler struct {
	board *Board
	sub   changefeed.Subscriber
	log   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewReconciler(b *Board, sub changefeed.Subscriber, log *zap.Logger) *Reconciler {
	return &Reconciler{board: b, sub: sub, log: log}
}

// Start subscribes and applies events in the background until Stop or ctx ends.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return ErrReconcilerRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	s, err := r.sub.Subscribe(ctx)
	if err != nil {
		cancel()
		return err
	}

	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(ctx, s, r.done)
	return nil
}

// Stop unsubscribes and waits for the event loop to exit.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *Reconciler) loop(ctx context.Context, s changefeed.Subscription, done chan struct{}) {
	defer close(done)
	defer r.finish(ctx, done)
	defer func() { _ = s.Close() }()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.Events():
			if !ok {
				return
			}
			r.Apply(ev)
		}
	}
}

// finish clears the running state when the loop ends without Stop, so the
// reconciler can be started again.
func (r *Reconciler) finish(ctx context.Context, done chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != done {
		return
	}
	if ctx.Err() == nil {
		r.log.Warn("change feed closed, reconciler stopped",
			zap.String("category", string(r.board.Category())))
	}
	r.cancel()
	r.cancel, r.done = nil, nil
}

// Apply handles one event and reports whether the board changed.
func (r *Reconciler) Apply(ev model.ChangeEvent) bool {
	if ev.Event != model.ChangeDelete || ev.Old == nil {
		return false
	}
	// The old image of a delete may carry only the primary key.
	if c := ev.Old.Category; c != "" && c != r.board.Category() {
		return false
	}
	if !r.board.Remove(ev.Old.ID) {
		return false
	}
	r.log.Debug("removed row deleted elsewhere",
		zap.String("category", string(r.board.Category())),
		zap.String("id", ev.Old.ID.String()))
	return true
}
