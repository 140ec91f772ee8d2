// Package region registers region modules with the engine. A module
// contributes its event variants to the codec registry and its handlers to
// the event bus; registration happens once at startup.
package region

import (
	"fmt"

	"github.com/gridshare/platform/internal/eventbus"
	"github.com/gridshare/platform/internal/eventstore"
)

// Module is implemented by every region adapter.
type Module interface {
	ID() string
	RegisterEvents(reg *eventstore.Registry) error
	RegisterHandlers(bus *eventbus.Bus) error
}

// Register adds the events of every module before any handler, so a
// handler never sees a variant the registry cannot decode.
func Register(reg *eventstore.Registry, bus *eventbus.Bus, mods ...Module) error {
	seen := make(map[string]bool, len(mods))
	for _, m := range mods {
		if m.ID() == "" {
			return fmt.Errorf("region module %T has no id", m)
		}
		if seen[m.ID()] {
			return fmt.Errorf("region module %s registered twice", m.ID())
		}
		seen[m.ID()] = true
	}

	for _, m := range mods {
		if err := m.RegisterEvents(reg); err != nil {
			return fmt.Errorf("register events of %s: %w", m.ID(), err)
		}
	}
	for _, m := range mods {
		if err := m.RegisterHandlers(bus); err != nil {
			return fmt.Errorf("register handlers of %s: %w", m.ID(), err)
		}
	}
	return nil
}
