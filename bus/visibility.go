package bus

import "sync/atomic"

// Visibility reports whether the hosting context is the one in the
// foreground. The bus only reads it.
type Visibility interface {
	Visible() bool
}

// VisibilityFunc adapts a function to Visibility.
type VisibilityFunc func() bool

func (f VisibilityFunc) Visible() bool {
	return f()
}

// AlwaysVisible is used when no visibility signal is configured.
var AlwaysVisible Visibility = VisibilityFunc(func() bool { return true })

// Flag is a settable Visibility. The zero value is visible.
type Flag struct {
	hidden atomic.Bool
}

// NewFlag returns a flag with the given initial visibility.
func NewFlag(visible bool) *Flag {
	f := &Flag{}
	f.Set(visible)
	return f
}

func (f *Flag) Visible() bool {
	return !f.hidden.Load()
}

func (f *Flag) Set(visible bool) {
	f.hidden.Store(!visible)
}

func (f *Flag) Show() {
	f.Set(true)
}

func (f *Flag) Hide() {
	f.Set(false)
}
