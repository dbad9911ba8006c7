package changefeed

import (
	"context"
	"fmt"
	"sync"

	mq "github.com/portfoliocms/assetsync/internal/infra/queue"
	"github.com/portfoliocms/assetsync/internal/modules/model"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AMQPFeed fans change events out through a rabbitmq exchange. Each
// subscriber gets its own exclusive queue.
type AMQPFeed struct {
	conn     *amqp.Connection
	pub      *mq.Publisher
	exchange string
	appName  string
	log      *zap.Logger
}

func NewAMQPFeed(conn *amqp.Connection, exchange, appName string, log *zap.Logger) (*AMQPFeed, error) {
	pub, err := mq.NewPublisher(conn, exchange, log, appName)
	if err != nil {
		return nil, err
	}
	return &AMQPFeed{conn: conn, pub: pub, exchange: exchange, appName: appName, log: log}, nil
}

func (f *AMQPFeed) Publish(ctx context.Context, ev model.ChangeEvent) error {
	return f.pub.PublishJSON(ctx, f.exchange, "", ev)
}

func (f *AMQPFeed) Subscribe(ctx context.Context) (Subscription, error) {
	consumer, err := mq.NewFanoutConsumer(f.conn, f.exchange, f.log, f.appName)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", f.exchange, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &amqpSubscription{
		consumer: consumer,
		out:      make(chan model.ChangeEvent, 64),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		defer close(s.out)
		err := consumer.Handle(ctx, func(ctx context.Context, body []byte) error {
			ev, err := decode(body)
			if err != nil {
				return fmt.Errorf("decode change event: %w", err)
			}
			if !accepts(ev) {
				return nil
			}
			select {
			case s.out <- ev:
			case <-ctx.Done():
			}
			return nil
		})
		if err != nil && ctx.Err() == nil {
			f.log.Warn("change feed consumer stopped", zap.String("exchange", f.exchange), zap.Error(err))
		}
	}()
	return s, nil
}

func (f *AMQPFeed) Close() error { return f.pub.Close() }

type amqpSubscription struct {
	consumer *mq.Consumer
	out      chan model.ChangeEvent
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
}

func (s *amqpSubscription) Events() <-chan model.ChangeEvent { return s.out }

func (s *amqpSubscription) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		<-s.done
		err = s.consumer.Close()
	})
	return err
}
