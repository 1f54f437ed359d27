// Package mode defines the ModeHandler interface every operational mode
// implements, and the Router that holds exactly one live handler at a time.
package mode

import (
	"context"

	"github.com/sv2d/sv2d/internal/domain"
)

// Handler is implemented by each of the four operational modes (Solo, Pool,
// Proxy, Client). The router dispatches every inbound connection event to
// whichever handler is currently active; there is never more than one.
type Handler interface {
	Mode() domain.Mode
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	OnConnect(ctx context.Context, conn *domain.Connection) error
	OnDisconnect(ctx context.Context, conn *domain.Connection)
	OnShare(ctx context.Context, conn *domain.Connection, share *domain.Share) (domain.ShareResult, error)
	GetWork(ctx context.Context, conn *domain.Connection) (*domain.WorkTemplate, error)
	Statistics() domain.MiningStats
}

// Factory constructs a Handler for a given mode from already-validated
// configuration. Each mode package registers itself via RegisterFactory in
// an init function in its own package, avoiding a hand-maintained switch
// statement that has to know about every mode package by import.
type Factory func(ctx context.Context) (Handler, error)

var factories = map[domain.Mode]Factory{}

// RegisterFactory makes a mode's constructor available to the router. Mode
// packages call this from init().
func RegisterFactory(m domain.Mode, f Factory) {
	factories[m] = f
}

// compatibleTransitions lists the mode-switch matrix: a transition not
// listed here requires a full restart rather than a hot switch.
var compatibleTransitions = map[[2]domain.Mode]bool{
	{domain.ModeSolo, domain.ModePool}: true,
	{domain.ModePool, domain.ModeSolo}: true,
}

// CanHotSwitch reports whether transitioning from `from` to `to` can happen
// without a process restart.
func CanHotSwitch(from, to domain.Mode) bool {
	if from == to {
		return true
	}
	return compatibleTransitions[[2]domain.Mode{from, to}]
}
