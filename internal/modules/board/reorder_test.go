package board

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/portfoliocms/assetsync/internal/modules/model"
	"github.com/portfoliocms/assetsync/internal/modules/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockPersister is a mock implementation of Persister
type MockPersister struct {
	mock.Mock
}

func (m *MockPersister) Persist(ctx context.Context, category model.Category, ids []uuid.UUID) error {
	args := m.Called(ctx, category, ids)
	return args.Error(0)
}

func orderings(rows []model.Asset) []int64 {
	out := make([]int64, len(rows))
	for i, a := range rows {
		out[i] = a.Ordering
	}
	return out
}

func TestReorderController_Apply(t *testing.T) {
	tests := []struct {
		name       string
		persistErr error
		wantNames  []string
		wantErr    bool
	}{
		{name: "persisted", wantNames: []string{"B", "A", "C"}},
		{name: "rolled back", persistErr: errors.New("network down"), wantNames: []string{"A", "B", "C"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, ids := rowsOf(model.CategoryImage, "A", "B", "C")
			b := New(model.CategoryImage, rows)
			before := b.Snapshot()

			next := []uuid.UUID{ids["B"], ids["A"], ids["C"]}
			p := &MockPersister{}
			p.On("Persist", mock.Anything, model.CategoryImage, next).Return(tt.persistErr)

			var shown [][]string
			b.OnChange(func(rows []model.Asset) { shown = append(shown, names(rows)) })

			c := NewReorderController(b, p, zap.NewNop())
			err := c.Apply(context.Background(), next)

			assert.Equal(t, StateStable, c.State())
			assert.Equal(t, tt.wantNames, names(b.Snapshot()))
			// The new order is shown before persistence finishes.
			require.NotEmpty(t, shown)
			assert.Equal(t, []string{"B", "A", "C"}, shown[0])

			if tt.wantErr {
				assert.ErrorIs(t, err, service.ErrReorderPersist)
				assert.Equal(t, before, b.Snapshot())
			} else {
				require.NoError(t, err)
				assert.Equal(t, []int64{1, 2, 3}, orderings(b.Snapshot()))
				assert.Len(t, shown, 1)
			}
			p.AssertExpectations(t)
		})
	}
}

func TestReorderController_KeepsPersistErrorKind(t *testing.T) {
	rows, ids := rowsOf(model.CategoryFile, "A", "B")
	b := New(model.CategoryFile, rows)
	next := []uuid.UUID{ids["B"], ids["A"]}

	rerr := &service.ReorderError{Category: model.CategoryFile, Failed: map[uuid.UUID]error{ids["A"]: errors.New("timeout")}}
	p := &MockPersister{}
	p.On("Persist", mock.Anything, model.CategoryFile, next).Return(rerr)

	err := NewReorderController(b, p, zap.NewNop()).Apply(context.Background(), next)
	var got *service.ReorderError
	require.True(t, errors.As(err, &got))
	assert.Contains(t, got.Failed, ids["A"])
	assert.Equal(t, []string{"A", "B"}, names(b.Snapshot()))
}

func TestReorderController_SecondReorderWhilePending(t *testing.T) {
	rows, ids := rowsOf(model.CategoryImage, "A", "B", "C")
	b := New(model.CategoryImage, rows)
	next := []uuid.UUID{ids["C"], ids["B"], ids["A"]}

	release := make(chan struct{})
	entered := make(chan struct{})
	p := &MockPersister{}
	p.On("Persist", mock.Anything, model.CategoryImage, next).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(errors.New("rejected"))

	c := NewReorderController(b, p, zap.NewNop())
	done := make(chan error, 1)
	go func() { done <- c.Apply(context.Background(), next) }()
	<-entered

	assert.Equal(t, StatePendingCommit, c.State())
	assert.ErrorIs(t, c.Apply(context.Background(), next), ErrReorderPending)

	// A row deleted elsewhere while pending must not come back on rollback.
	b.Remove(ids["B"])
	close(release)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, service.ErrReorderPersist)
	case <-time.After(time.Second):
		t.Fatal("Apply did not return")
	}
	assert.Equal(t, []string{"A", "C"}, names(b.Snapshot()))
	assert.Equal(t, StateStable, c.State())
}

func TestReorderController_RejectsForeignOrder(t *testing.T) {
	rows, ids := rowsOf(model.CategoryImage, "A", "B")
	b := New(model.CategoryImage, rows)
	p := &MockPersister{}
	c := NewReorderController(b, p, zap.NewNop())

	tests := []struct {
		name string
		ids  []uuid.UUID
	}{
		{name: "missing id", ids: []uuid.UUID{ids["A"]}},
		{name: "unknown id", ids: []uuid.UUID{ids["A"], uuid.New()}},
		{name: "duplicate id", ids: []uuid.UUID{ids["A"], ids["A"]}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, c.Apply(context.Background(), tt.ids), ErrUnknownOrder)
			assert.Equal(t, StateStable, c.State())
		})
	}
	p.AssertNotCalled(t, "Persist", mock.Anything, mock.Anything, mock.Anything)
}

func TestReorderController_Move(t *testing.T) {
	rows, ids := rowsOf(model.CategoryImage, "A", "B", "C", "D")
	b := New(model.CategoryImage, rows)
	p := &MockPersister{}
	p.On("Persist", mock.Anything, model.CategoryImage, []uuid.UUID{ids["B"], ids["C"], ids["A"], ids["D"]}).Return(nil)

	c := NewReorderController(b, p, zap.NewNop())
	require.NoError(t, c.Move(context.Background(), 0, 2))
	assert.Equal(t, []string{"B", "C", "A", "D"}, names(b.Snapshot()))
	assert.Equal(t, []int64{1, 2, 3, 4}, orderings(b.Snapshot()))

	assert.ErrorIs(t, c.Move(context.Background(), 0, 9), ErrMoveOutOfRange)
	assert.NoError(t, c.Move(context.Background(), 1, 1))
	p.AssertNumberOfCalls(t, "Persist", 1)
}
