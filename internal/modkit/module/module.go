// Package module defines the minimal contract for a modkit module
package module

import (
	phttp "rplace/internal/platform/net/http"
)

// Module defines the minimal contract used by modkit
// keep this sibling to avoid import knots when a module also exports its own ports type
type Module interface {
	// MountRoutes mounts the module's status routes on the ops router
	MountRoutes(r phttp.Router)
	// Ports returns a module specific port set for cross wiring
	Ports() any
	// Name returns the module name used in logs
	Name() string
}

// Mount mounts each module's routes on r
func Mount(r phttp.Router, mods ...Module) {
	for _, m := range mods {
		m.MountRoutes(r)
	}
}
