package common

import errs "poolhost/core/errors"

var ErrModulePaused = errs.ErrModulePaused

type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when module is paused.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// StaticPauses is a fixed pause set, typically loaded from configuration.
type StaticPauses map[string]bool

func (s StaticPauses) IsPaused(module string) bool { return s[module] }
