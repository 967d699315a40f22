package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Producer is an async writer fed through a buffered inbox; Publish never
// blocks the request path on the broker. The topic travels per message so
// one producer serves every lifecycle topic.
type Producer struct {
	w       *kafka.Writer
	log     *zap.Logger
	inbox   chan kafka.Message
	closeCh chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewProducer(brokers []string, log *zap.Logger, buf int) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        true,
		},
		log:     log,
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

func (p *Producer) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				p.closeIntake()
				for m := range p.inbox {
					p.write(m)
				}
				_ = p.w.Close()
				close(p.closeCh)
				return
			case m, ok := <-p.inbox:
				if !ok {
					_ = p.w.Close()
					close(p.closeCh)
					return
				}
				p.write(m)
			}
		}
	}()
}

func (p *Producer) write(m kafka.Message) {
	if err := p.w.WriteMessages(context.Background(), m); err != nil {
		p.log.Error("kafka write failed",
			zap.String("topic", m.Topic), zap.Error(err))
	}
}

// Publish enqueues an event. After Close, or when the inbox is full, the
// event is dropped with a warning rather than blocking or panicking; late
// publishers racing shutdown (the sweeper, in-flight handlers) stay safe.
func (p *Producer) Publish(topic string, key, value []byte, headers ...kafka.Header) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.log.Warn("event dropped, producer closed", zap.String("topic", topic))
		return
	}
	select {
	case p.inbox <- kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}:
	default:
		p.log.Warn("event dropped, inbox full", zap.String("topic", topic))
	}
}

// closeIntake closes the inbox exactly once; Close and context
// cancellation can both land here.
func (p *Producer) closeIntake() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.inbox)
}

// Close stops intake so the loop flushes what is queued and exits.
func (p *Producer) Close() { p.closeIntake() }

// WaitClosed blocks until the flush loop finished.
func (p *Producer) WaitClosed() { <-p.closeCh }
