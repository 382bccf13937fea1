package mail

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func fastPool() PoolConfig {
	return PoolConfig{Workers: 2, QueueSize: 8, MaxRetries: 3, InitialInterval: time.Millisecond, SendTimeout: time.Second}
}

func TestPoolDispatcherRetriesUntilSent(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	sender := &mockSender{sendFn: func(context.Context, Message) error {
		if attempts.Add(1) < 3 {
			return errors.New("temporary failure")
		}
		return nil
	}}
	recorder := &countingMail{}
	d := NewPoolDispatcher(sender, fastPool(), recorder, zaptest.NewLogger(t))

	require.NoError(t, d.Enqueue(context.Background(), sampleMessage()))
	require.NoError(t, d.Close(context.Background()))

	require.EqualValues(t, 3, attempts.Load())
	require.Equal(t, 1, recorder.get(outcomeQueued))
	require.Equal(t, 1, recorder.get(outcomeSent))
}

func TestPoolDispatcherGivesUp(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	sender := &mockSender{sendFn: func(context.Context, Message) error {
		attempts.Add(1)
		return errors.New("permanent outage")
	}}
	recorder := &countingMail{}
	d := NewPoolDispatcher(sender, fastPool(), recorder, zaptest.NewLogger(t))

	require.NoError(t, d.Enqueue(context.Background(), sampleMessage()))
	require.NoError(t, d.Close(context.Background()))

	require.EqualValues(t, 4, attempts.Load())
	require.Equal(t, 1, recorder.get(outcomeFailed))
}

func TestPoolDispatcherRecoversPanics(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	sender := &mockSender{sendFn: func(_ context.Context, msg Message) error {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return nil
	}}
	recorder := &countingMail{}
	cfg := fastPool()
	cfg.Workers = 1
	d := NewPoolDispatcher(sender, cfg, recorder, zaptest.NewLogger(t))

	require.NoError(t, d.Enqueue(context.Background(), sampleMessage()))
	require.NoError(t, d.Enqueue(context.Background(), sampleMessage()))
	require.NoError(t, d.Close(context.Background()))

	require.Equal(t, 1, recorder.get(outcomeFailed))
	require.Equal(t, 1, recorder.get(outcomeSent))
}

func TestPoolDispatcherQueueFullAndClosed(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	sender := &mockSender{sendFn: func(context.Context, Message) error {
		<-release
		return nil
	}}
	recorder := &countingMail{}
	d := NewPoolDispatcher(sender, PoolConfig{Workers: 1, QueueSize: 1, InitialInterval: time.Millisecond}, recorder, zaptest.NewLogger(t))

	var err error
	for range 4 {
		if err = d.Enqueue(context.Background(), sampleMessage()); err != nil {
			break
		}
	}
	require.ErrorIs(t, err, ErrQueueFull)
	require.Equal(t, 1, recorder.get(outcomeDropped))

	close(release)
	require.NoError(t, d.Close(context.Background()))
	require.ErrorIs(t, d.Enqueue(context.Background(), sampleMessage()), ErrDispatcherClosed)
	require.NoError(t, d.Close(context.Background()))
}

func TestPoolDispatcherRejectsInvalidMessage(t *testing.T) {
	t.Parallel()

	d := NewPoolDispatcher(&mockSender{}, fastPool(), nil, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = d.Close(context.Background()) })

	require.Error(t, d.Enqueue(context.Background(), Message{}))
}
