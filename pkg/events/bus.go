// Package events carries per-target lifecycle notifications over an
// in-memory watermill bus. The orchestrator publishes one event per step per
// target; subscribers (CLI progress output, the watch view) render them.
package events

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	gochannel "github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
)

const TopicLifecycle = "devstack.lifecycle"

type Bus struct {
	Router     *message.Router
	Publisher  message.Publisher
	Subscriber message.Subscriber

	runOnce sync.Once
}

func NewInMemoryBus() (*Bus, error) {
	logger := watermill.NopLogger{}
	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)

	r, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "new watermill router")
	}
	return &Bus{
		Router:     r,
		Publisher:  pubsub,
		Subscriber: pubsub,
	}, nil
}

func (b *Bus) AddHandler(name string, handler func(*message.Message) error) {
	b.Router.AddConsumerHandler(name, TopicLifecycle, b.Subscriber, handler)
}

// Close shuts the pubsub down. Handlers finish whatever is buffered on their
// subscriptions before the router stops, so a publish-then-Close sequence
// never loses events.
func (b *Bus) Close() error {
	return b.Publisher.Close()
}

func (b *Bus) Run(ctx context.Context) error {
	var runErr error
	b.runOnce.Do(func() {
		go func() {
			<-ctx.Done()
			_ = b.Router.Close()
		}()
		runErr = b.Router.Run(ctx)
	})
	return runErr
}
