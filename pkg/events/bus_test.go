package events

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishReachesHandler(t *testing.T) {
	bus, err := NewInMemoryBus()
	require.NoError(t, err)

	received := make(chan Event, 8)
	bus.AddHandler("test-collector", func(msg *message.Message) error {
		ev, err := Decode(msg)
		if err != nil {
			return err
		}
		received <- ev
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = bus.Run(ctx)
	}()

	select {
	case <-bus.Router.Running():
	case <-time.After(3 * time.Second):
		t.Fatal("router never started")
	}

	Publish(bus.Publisher, Event{Type: TypeAppStarted, Target: "web", Kind: "app", PID: 1234, Port: 4001})
	Publish(bus.Publisher, Event{Type: TypeWarning, Target: "db", Kind: "container", Detail: "readiness check timed out"})

	var got []Event
	for len(got) < 2 {
		select {
		case ev := <-received:
			got = append(got, ev)
		case <-time.After(3 * time.Second):
			t.Fatalf("only received %d events", len(got))
		}
	}

	require.Equal(t, TypeAppStarted, got[0].Type)
	require.Equal(t, "web", got[0].Target)
	require.Equal(t, 1234, got[0].PID)
	require.Equal(t, 4001, got[0].Port)
	require.False(t, got[0].At.IsZero())

	require.Equal(t, TypeWarning, got[1].Type)
	require.Equal(t, "readiness check timed out", got[1].Detail)

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("router did not stop on cancel")
	}
}

func TestBus_CloseDrainsBufferedEvents(t *testing.T) {
	bus, err := NewInMemoryBus()
	require.NoError(t, err)

	received := make(chan Event, 64)
	bus.AddHandler("slow-collector", func(msg *message.Message) error {
		ev, err := Decode(msg)
		if err != nil {
			return err
		}
		time.Sleep(time.Millisecond)
		received <- ev
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = bus.Run(ctx)
	}()

	select {
	case <-bus.Router.Running():
	case <-time.After(3 * time.Second):
		t.Fatal("router never started")
	}

	const n = 50
	for i := 0; i < n; i++ {
		Publish(bus.Publisher, Event{Type: TypeAppStarted, Target: "web", PID: i + 1})
	}
	// Close immediately: everything already published must still be handled.
	require.NoError(t, bus.Close())

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("router did not stop after close")
	}
	require.Len(t, received, n)
}

func TestPublish_NilPublisherIsNoop(t *testing.T) {
	Publish(nil, Event{Type: TypeAppStarted, Target: "web"})
}

func TestDecode_BadPayload(t *testing.T) {
	_, err := Decode(message.NewMessage("id", []byte("{not json")))
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode lifecycle event")
}
