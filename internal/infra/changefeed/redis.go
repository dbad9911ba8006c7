package changefeed

import (
	"context"
	"fmt"
	"sync"

	"github.com/portfoliocms/assetsync/internal/modules/model"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisFeed publishes change events on a redis pub/sub channel.
type RedisFeed struct {
	rdb     *redis.Client
	channel string
	log     *zap.Logger
}

func NewRedisFeed(rdb *redis.Client, channel string, log *zap.Logger) *RedisFeed {
	return &RedisFeed{rdb: rdb, channel: channel, log: log}
}

func (f *RedisFeed) Publish(ctx context.Context, ev model.ChangeEvent) error {
	b, err := encode(ev)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	return f.rdb.Publish(ctx, f.channel, b).Err()
}

func (f *RedisFeed) Subscribe(ctx context.Context) (Subscription, error) {
	ps := f.rdb.Subscribe(ctx, f.channel)
	// Wait for the subscription confirmation so no event published after
	// Subscribe returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", f.channel, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &redisSubscription{
		ps:     ps,
		out:    make(chan model.ChangeEvent, 64),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.loop(ctx, f.log)
	return s, nil
}

type redisSubscription struct {
	ps     *redis.PubSub
	out    chan model.ChangeEvent
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) loop(ctx context.Context, log *zap.Logger) {
	defer close(s.done)
	defer close(s.out)

	msgs := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			ev, err := decode([]byte(msg.Payload))
			if err != nil {
				log.Warn("drop undecodable change event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if !accepts(ev) {
				continue
			}
			select {
			case s.out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *redisSubscription) Events() <-chan model.ChangeEvent { return s.out }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.ps.Close()
		<-s.done
	})
	return err
}
