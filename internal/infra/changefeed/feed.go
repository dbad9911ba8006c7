// Package changefeed carries row-level change events for the assets table
// between processes.
package changefeed

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/portfoliocms/assetsync/internal/modules/model"
)

type Publisher interface {
	Publish(ctx context.Context, ev model.ChangeEvent) error
}

type Subscriber interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

// Feed is both ends of a change feed.
type Feed interface {
	Publisher
	Subscriber
}

// Subscription delivers events until Close is called or its context ends.
// The channel is closed when delivery stops.
type Subscription interface {
	Events() <-chan model.ChangeEvent
	Close() error
}

func encode(ev model.ChangeEvent) ([]byte, error) {
	return sonic.Marshal(ev)
}

func decode(b []byte) (model.ChangeEvent, error) {
	var ev model.ChangeEvent
	err := sonic.Unmarshal(b, &ev)
	return ev, err
}

// accepts reports whether ev belongs to the public.assets feed.
func accepts(ev model.ChangeEvent) bool {
	return ev.Schema == model.FeedSchema && ev.Table == model.FeedTable
}
