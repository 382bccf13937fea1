package mail

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

var (
	ErrQueueFull        = errors.New("mail: queue is full")
	ErrDispatcherClosed = errors.New("mail: dispatcher is closed")
)

// PoolConfig tunes PoolDispatcher.
type PoolConfig struct {
	Workers         int
	QueueSize       int
	MaxRetries      uint64
	InitialInterval time.Duration
	SendTimeout     time.Duration
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = c.Workers * 16
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 500 * time.Millisecond
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
	return c
}

// PoolDispatcher delivers messages from a bounded queue with a fixed set of
// workers. Each delivery is retried with exponential backoff.
type PoolDispatcher struct {
	sender   Sender
	cfg      PoolConfig
	recorder Recorder
	logger   *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Message
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPoolDispatcher starts the workers. recorder may be nil.
func NewPoolDispatcher(sender Sender, cfg PoolConfig, recorder Recorder, logger *zap.Logger) *PoolDispatcher {
	if sender == nil {
		panic("mail pool dispatcher requires sender")
	}
	if logger == nil {
		panic("mail pool dispatcher requires logger")
	}

	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	d := &PoolDispatcher{
		sender:   sender,
		cfg:      cfg,
		recorder: recorder,
		logger:   logger,
		queue:    make(chan Message, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}

	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	return d
}

// Enqueue implements Dispatcher. It never blocks.
func (d *PoolDispatcher) Enqueue(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.queue <- msg:
		record(d.recorder, outcomeQueued)
		return nil
	default:
		record(d.recorder, outcomeDropped)
		return ErrQueueFull
	}
}

// Close stops accepting messages and waits for queued ones to drain. When
// ctx expires first, in-flight retries are abandoned.
func (d *PoolDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return fmt.Errorf("mail pool drain: %w", ctx.Err())
	}
}

func (d *PoolDispatcher) worker(id int) {
	defer d.wg.Done()
	for msg := range d.queue {
		d.deliver(id, msg)
	}
}

func (d *PoolDispatcher) deliver(id int, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			record(d.recorder, outcomeFailed)
			d.logger.Error("mail worker panic",
				zap.Int("worker", id),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.cfg.InitialInterval
	b := backoff.WithContext(backoff.WithMaxRetries(policy, d.cfg.MaxRetries), d.ctx)

	attempt := func() error {
		ctx, cancel := context.WithTimeout(d.ctx, d.cfg.SendTimeout)
		defer cancel()
		return d.sender.Send(ctx, msg)
	}
	notify := func(err error, wait time.Duration) {
		d.logger.Warn("mail delivery failed, retrying",
			zap.String("to", msg.To), zap.Duration("wait", wait), zap.Error(err))
	}

	if err := backoff.RetryNotify(attempt, b, notify); err != nil {
		record(d.recorder, outcomeFailed)
		d.logger.Error("mail delivery abandoned", zap.String("to", msg.To), zap.Error(err))
		return
	}
	record(d.recorder, outcomeSent)
}
