package kafka

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

// Shutdown and late publishers race in production: the sweeper can still
// emit while the context is being cancelled, and Close plus cancellation
// can both try to stop intake. None of that may panic.
func TestProducerShutdownSafe(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, zap.NewNop(), 4)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	p.Publish("orders.test", []byte("k"), []byte("v"))

	cancel()
	p.WaitClosed()

	// Late publish after the loop exited is dropped, not a panic.
	p.Publish("orders.test", []byte("k"), []byte("v"))

	// Close after cancellation already closed intake is a no-op.
	p.Close()
	p.Close()
}

func TestProducerPublishNeverBlocks(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, zap.NewNop(), 2)
	// No flush loop running: overflow beyond the buffer must drop
	// instead of wedging the caller.
	for i := 0; i < 10; i++ {
		p.Publish("orders.test", []byte("k"), []byte("v"))
	}
	p.Close()
	p.Start(context.Background())
	p.WaitClosed()
}
