package changefeed

import (
	"context"
	"sync"

	"github.com/portfoliocms/assetsync/internal/modules/model"
)

// MemoryFeed is an in-process feed. Slow subscribers drop events rather than
// blocking publishers.
type MemoryFeed struct {
	mu   sync.Mutex
	subs map[*memorySubscription]struct{}
}

func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[*memorySubscription]struct{})}
}

func (f *MemoryFeed) Publish(_ context.Context, ev model.ChangeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for s := range f.subs {
		select {
		case s.out <- ev:
		default:
		}
	}
	return nil
}

func (f *MemoryFeed) Subscribe(ctx context.Context) (Subscription, error) {
	s := &memorySubscription{feed: f, out: make(chan model.ChangeEvent, 64), closed: make(chan struct{})}
	f.mu.Lock()
	f.subs[s] = struct{}{}
	f.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.closed:
		}
	}()
	return s, nil
}

type memorySubscription struct {
	feed   *MemoryFeed
	out    chan model.ChangeEvent
	closed chan struct{}
	once   sync.Once
}

func (s *memorySubscription) Events() <-chan model.ChangeEvent { return s.out }

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.feed.mu.Lock()
		delete(s.feed.subs, s)
		close(s.out)
		close(s.closed)
		s.feed.mu.Unlock()
	})
	return nil
}
