package config

import (
	"sync/atomic"
)

// Provider hands out the current ordering configuration. Callers read it
// once per operation and never keep the value beyond that operation.
type Provider interface {
	Get() Ordering
}

// Live is a Provider whose value can be replaced at runtime.
type Live struct {
	path    string
	current atomic.Pointer[Ordering]
}

func NewLive(path string, initial Ordering) *Live {
	l := &Live{path: path}
	initial.normalize()
	l.current.Store(&initial)
	return l
}

func (l *Live) Get() Ordering {
	return *l.current.Load()
}

// Set swaps the ordering section.
func (l *Live) Set(o Ordering) {
	o.normalize()
	l.current.Store(&o)
}

// Reload re-reads the config file and swaps the ordering section. A
// failed read leaves the previous value in place.
func (l *Live) Reload() (Ordering, error) {
	cfg, err := LoadPath(l.path)
	if err != nil {
		return l.Get(), err
	}
	l.Set(cfg.Ordering)
	return l.Get(), nil
}

// Static is a fixed Provider, handy in tests.
type Static Ordering

func (s Static) Get() Ordering {
	o := Ordering(s)
	o.normalize()
	return o
}
