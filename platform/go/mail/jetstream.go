package mail

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

const (
	StreamName   = "PALMYRA_MAIL"
	Subject      = "mail.invitations"
	ConsumerName = "mail-sender"

	maxDeliver = 8
)

// ConnectJetStream connects to NATS and ensures the mail stream exists. The
// caller owns the returned connection.
func ConnectJetStream(ctx context.Context, url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url, nats.Name("palmyra-projects"))
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{Subject},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream stream %s: %w", StreamName, err)
	}
	return nc, js, nil
}

type publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// JetStreamDispatcher publishes messages to the durable mail stream.
type JetStreamDispatcher struct {
	js       publisher
	recorder Recorder
}

// NewJetStreamDispatcher builds a JetStreamDispatcher. recorder may be nil.
func NewJetStreamDispatcher(js publisher, recorder Recorder) *JetStreamDispatcher {
	if js == nil {
		panic("mail jetstream dispatcher requires jetstream")
	}
	return &JetStreamDispatcher{js: js, recorder: recorder}
}

// Enqueue implements Dispatcher.
func (d *JetStreamDispatcher) Enqueue(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode mail: %w", err)
	}
	if _, err := d.js.Publish(ctx, Subject, data); err != nil {
		record(d.recorder, outcomeDropped)
		return fmt.Errorf("publish %s: %w", Subject, err)
	}
	record(d.recorder, outcomeQueued)
	return nil
}

// Consumer drains the mail stream into a Sender. Delivery is at least once.
type Consumer struct {
	js       jetstream.JetStream
	sender   Sender
	recorder Recorder
	logger   *zap.Logger
}

// NewConsumer builds a Consumer. recorder may be nil.
func NewConsumer(js jetstream.JetStream, sender Sender, recorder Recorder, logger *zap.Logger) *Consumer {
	if js == nil {
		panic("mail consumer requires jetstream")
	}
	if sender == nil {
		panic("mail consumer requires sender")
	}
	if logger == nil {
		panic("mail consumer requires logger")
	}
	return &Consumer{js: js, sender: sender, recorder: recorder, logger: logger}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	cons, err := c.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       ConsumerName,
		FilterSubject: Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    maxDeliver,
	})
	if err != nil {
		return fmt.Errorf("jetstream consumer %s: %w", ConsumerName, err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		c.handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("jetstream consume: %w", err)
	}
	c.logger.Info("mail consumer started", zap.String("stream", StreamName), zap.String("subject", Subject))

	<-ctx.Done()
	cc.Stop()
	return nil
}

// delivery is the part of jetstream.Msg the consumer uses.
type delivery interface {
	Data() []byte
	Ack() error
	Nak() error
	Term() error
}

func (c *Consumer) handle(ctx context.Context, d delivery) {
	var msg Message
	if err := json.Unmarshal(d.Data(), &msg); err != nil {
		c.logger.Error("discarding malformed mail message", zap.Error(err))
		record(c.recorder, outcomeFailed)
		if termErr := d.Term(); termErr != nil {
			c.logger.Error("jetstream term failed", zap.Error(termErr))
		}
		return
	}

	if err := c.sender.Send(ctx, msg); err != nil {
		c.logger.Warn("mail delivery failed, redelivering", zap.String("to", msg.To), zap.Error(err))
		record(c.recorder, outcomeFailed)
		if nakErr := d.Nak(); nakErr != nil {
			c.logger.Error("jetstream nak failed", zap.Error(nakErr))
		}
		return
	}

	record(c.recorder, outcomeSent)
	if ackErr := d.Ack(); ackErr != nil {
		c.logger.Error("jetstream ack failed", zap.Error(ackErr))
	}
}
