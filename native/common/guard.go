package common

import "errors"

var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a named module has been halted by operations.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard returns ErrModulePaused when the named module is paused. A nil view or
// empty module name never blocks.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// PauseSet is a static PauseView configured at wiring time.
type PauseSet map[string]bool

// IsPaused implements PauseView.
func (p PauseSet) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	return p[module]
}
