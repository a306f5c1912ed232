// Package lifecycle tracks page visibility, the session countdown and the
// leave flag that outlives a reload.
package lifecycle

import "fmt"

type Phase int

const (
	Foreground Phase = iota
	Background
)

func (p Phase) String() string {
	if p == Background {
		return "background"
	}
	return "foreground"
}

// Signal is a visibility event reported by the host.
type Signal int

const (
	Hidden Signal = iota
	Shown
	Blur
	Focus
	PageHide
	PageShow
	PageShowPersisted
	BeforeUnload
)

var signalNames = map[string]Signal{
	"hidden":             Hidden,
	"shown":              Shown,
	"blur":               Blur,
	"focus":              Focus,
	"pagehide":           PageHide,
	"pageshow":           PageShow,
	"pageshow_persisted": PageShowPersisted,
	"beforeunload":       BeforeUnload,
}

func ParseSignal(name string) (Signal, error) {
	sig, ok := signalNames[name]
	if !ok {
		return 0, fmt.Errorf("unknown visibility signal %q", name)
	}
	return sig, nil
}

// Hooks run on transitions. EnterBackground learns whether the page is
// being torn down.
type Hooks struct {
	EnterBackground  func(unloading bool)
	ReturnForeground func()
}

// Visibility is the Foreground/Background state machine.
type Visibility struct {
	phase     Phase
	unloading bool
	hooks     Hooks
}

func NewVisibility(hooks Hooks) *Visibility {
	return &Visibility{hooks: hooks}
}

func (v *Visibility) Phase() Phase { return v.phase }

func (v *Visibility) Unloading() bool { return v.unloading }

// Handle applies a signal and reports whether the phase changed.
func (v *Visibility) Handle(sig Signal) bool {
	switch sig {
	case Hidden:
		return v.toBackground()
	case Shown:
		v.unloading = false
		return v.toForeground()
	case Blur:
		if v.unloading {
			return false
		}
		return v.toBackground()
	case Focus:
		if v.unloading {
			return false
		}
		return v.toForeground()
	case PageHide, BeforeUnload:
		v.unloading = true
		return v.toBackground()
	case PageShowPersisted:
		if v.phase != Background {
			return false
		}
		v.unloading = false
		return v.toForeground()
	}
	return false
}

func (v *Visibility) toBackground() bool {
	if v.phase == Background {
		return false
	}
	v.phase = Background
	if v.hooks.EnterBackground != nil {
		v.hooks.EnterBackground(v.unloading)
	}
	return true
}

func (v *Visibility) toForeground() bool {
	if v.phase == Foreground || v.unloading {
		return false
	}
	v.phase = Foreground
	if v.hooks.ReturnForeground != nil {
		v.hooks.ReturnForeground()
	}
	return true
}
