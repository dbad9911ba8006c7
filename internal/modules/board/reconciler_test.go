package board

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/portfoliocms/assetsync/internal/infra/changefeed"
	"github.com/portfoliocms/assetsync/internal/modules/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingSubscriber struct{ err error }

func (f failingSubscriber) Subscribe(context.Context) (changefeed.Subscription, error) {
	return nil, f.err
}

// chanSubscriber hands each subscription to the test, which can feed or close it.
type chanSubscriber struct {
	subs chan *chanSubscription
}

type chanSubscription struct {
	ch chan model.ChangeEvent
}

func (s *chanSubscription) Events() <-chan model.ChangeEvent { return s.ch }
func (s *chanSubscription) Close() error { return nil }

func (f *chanSubscriber) Subscribe(context.Context) (changefeed.Subscription, error) {
	s := &chanSubscription{ch: make(chan model.ChangeEvent, 1)}
	f.subs <- s
	return s, nil
}

func TestReconciler_Apply(t *testing.T) {
	rows, ids := rowsOf(model.CategoryImage, "X", "Y", "Z")

	tests := []struct {
		name      string
		ev        model.ChangeEvent
		changed   bool
		wantNames []string
	}{
		{
			name:      "delete of held row",
			ev:        model.NewChangeEvent(model.ChangeDelete, &model.Asset{ID: ids["Y"], Category: model.CategoryImage}, nil),
			changed:   true,
			wantNames: []string{"X", "Z"},
		},
		{
			name:      "delete with key-only old image",
			ev:        model.NewChangeEvent(model.ChangeDelete, &model.Asset{ID: ids["Z"]}, nil),
			changed:   true,
			wantNames: []string{"X", "Y"},
		},
		{
			name:      "delete of unknown row",
			ev:        model.NewChangeEvent(model.ChangeDelete, &model.Asset{ID: uuid.New(), Category: model.CategoryImage}, nil),
			wantNames: []string{"X", "Y", "Z"},
		},
		{
			name:      "delete in other category",
			ev:        model.NewChangeEvent(model.ChangeDelete, &model.Asset{ID: ids["X"], Category: model.CategoryFile}, nil),
			wantNames: []string{"X", "Y", "Z"},
		},
		{
			name:      "update is ignored",
			ev:        model.NewChangeEvent(model.ChangeUpdate, &model.Asset{ID: ids["X"]}, &model.Asset{ID: ids["X"], Ordering: 3}),
			wantNames: []string{"X", "Y", "Z"},
		},
		{
			name:      "insert is ignored",
			ev:        model.NewChangeEvent(model.ChangeInsert, nil, &model.Asset{ID: uuid.New(), Category: model.CategoryImage, Ordering: 4}),
			wantNames: []string{"X", "Y", "Z"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(model.CategoryImage, rows)
			r := NewReconciler(b, changefeed.NewMemoryFeed(), zap.NewNop())
			assert.Equal(t, tt.changed, r.Apply(tt.ev))
			assert.Equal(t, tt.wantNames, names(b.Snapshot()))
		})
	}
}

func TestReconciler_FollowsFeed(t *testing.T) {
	rows, ids := rowsOf(model.CategoryImage, "X", "Y", "Z")
	b := New(model.CategoryImage, rows)
	feed := changefeed.NewMemoryFeed()

	changed := make(chan []string, 4)
	b.OnChange(func(rows []model.Asset) { changed <- names(rows) })

	r := NewReconciler(b, feed, zap.NewNop())
	require.NoError(t, r.Start(context.Background()))
	assert.ErrorIs(t, r.Start(context.Background()), ErrReconcilerRunning)

	ctx := context.Background()
	require.NoError(t, feed.Publish(ctx, model.NewChangeEvent(model.ChangeUpdate, nil, &model.Asset{ID: ids["X"]})))
	require.NoError(t, feed.Publish(ctx, model.NewChangeEvent(model.ChangeDelete, &model.Asset{ID: ids["Y"], Category: model.CategoryImage}, nil)))

	select {
	case got := <-changed:
		assert.Equal(t, []string{"X", "Z"}, got)
	case <-time.After(time.Second):
		t.Fatal("board was not updated")
	}

	r.Stop()
	r.Stop()

	require.NoError(t, feed.Publish(ctx, model.NewChangeEvent(model.ChangeDelete, &model.Asset{ID: ids["X"]}, nil)))
	assert.Equal(t, []string{"X", "Z"}, names(b.Snapshot()))
}

func TestReconciler_SubscribeFailure(t *testing.T) {
	b := New(model.CategoryFile, nil)
	r := NewReconciler(b, failingSubscriber{err: errors.New("redis down")}, zap.NewNop())

	assert.Error(t, r.Start(context.Background()))
	// A failed start leaves the reconciler startable.
	r.sub = changefeed.NewMemoryFeed()
	require.NoError(t, r.Start(context.Background()))
	r.Stop()
}

func TestReconciler_RestartAfterFeedCloses(t *testing.T) {
	rows, ids := rowsOf(model.CategoryImage, "X", "Y", "Z")
	b := New(model.CategoryImage, rows)
	sub := &chanSubscriber{subs: make(chan *chanSubscription, 2)}
	r := NewReconciler(b, sub, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, r.Start(ctx))
	first := <-sub.subs
	close(first.ch)

	require.Eventually(t, func() bool { return r.Start(ctx) == nil }, time.Second, 5*time.Millisecond)
	second := <-sub.subs
	second.ch <- model.NewChangeEvent(model.ChangeDelete, &model.Asset{ID: ids["Y"]}, nil)

	require.Eventually(t, func() bool { return !b.Has(ids["Y"]) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"X", "Z"}, names(b.Snapshot()))
	r.Stop()
}
