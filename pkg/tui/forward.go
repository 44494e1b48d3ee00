package tui

import (
	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/go-go-golems/devstack/pkg/events"
)

// RegisterEventForwarder relays lifecycle events from the bus into the
// running program.
func RegisterEventForwarder(bus *events.Bus, p *tea.Program) {
	bus.AddHandler("devstack-watch-forward", func(msg *message.Message) error {
		defer msg.Ack()

		ev, err := events.Decode(msg)
		if err != nil {
			return err
		}
		p.Send(EventMsg{Event: ev})
		return nil
	})
}
