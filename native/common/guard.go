package common

import (
	"errors"
	"strings"
)

// ErrModulePaused is returned by mutations routed to a paused module.
var ErrModulePaused = errors.New("module paused")

// Module identifiers understood by the pause guard.
const (
	ModuleDiscount = "discount"
	ModuleToken    = "token"
)

// PauseView reports whether a module is currently paused.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard returns ErrModulePaused when module is paused in p.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// StaticPauses is a PauseView backed by operator configuration.
type StaticPauses map[string]bool

// IsPaused implements PauseView. Module names are matched case-insensitively.
func (s StaticPauses) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	return s[strings.ToLower(strings.TrimSpace(module))]
}
