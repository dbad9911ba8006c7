package changefeed

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/portfoliocms/assetsync/internal/modules/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFeed_FanOut(t *testing.T) {
	feed := NewMemoryFeed()
	ctx := context.Background()

	a, err := feed.Subscribe(ctx)
	require.NoError(t, err)
	b, err := feed.Subscribe(ctx)
	require.NoError(t, err)

	row := &model.Asset{ID: uuid.New()}
	require.NoError(t, feed.Publish(ctx, model.NewChangeEvent(model.ChangeDelete, row, nil)))

	assert.Equal(t, row.ID, receive(t, a).RowID())
	assert.Equal(t, row.ID, receive(t, b).RowID())

	require.NoError(t, a.Close())
	require.NoError(t, feed.Publish(ctx, model.NewChangeEvent(model.ChangeDelete, row, nil)))
	assert.Equal(t, row.ID, receive(t, b).RowID())
	require.NoError(t, b.Close())
}

func TestMemoryFeed_ContextCancelCloses(t *testing.T) {
	feed := NewMemoryFeed()
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := feed.Subscribe(ctx)
	require.NoError(t, err)
	cancel()

	_, ok := <-sub.Events()
	assert.False(t, ok)
}
