package sync

import (
	"log/slog"
)

// State is a step of a sync run
type State int

const (
	StateStart State = iota
	StateListed
	StatePlanned
	StateFetching
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateListed:
		return "listed"
	case StatePlanned:
		return "planned"
	case StateFetching:
		return "fetching"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Event describes a state transition of a run
type Event struct {
	State State
	// File is set while fetching
	File string
	// Index is the position of File in the fetch set
	Index int
	// Total is the number of listed files in StateListed and the size of
	// the fetch set from StatePlanned on
	Total int
	Err   error
}

// Observer receives the transitions of a run
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

// Observe calls f(ev)
func (f ObserverFunc) Observe(ev Event) { f(ev) }

// LogObserver reports transitions through a structured logger
type LogObserver struct {
	Logger *slog.Logger
}

// Observe logs ev
func (o LogObserver) Observe(ev Event) {
	switch ev.State {
	case StateStart:
		o.Logger.Info("begin")
	case StateListed:
		o.Logger.Info("remote listing matched", "count", ev.Total)
	case StatePlanned:
		o.Logger.Info("sync plan", "fetch", ev.Total)
	case StateFetching:
		o.Logger.Info("fetch "+ev.File, "file", ev.File, "index", ev.Index+1, "total", ev.Total)
	case StateDone:
		o.Logger.Info("end")
	case StateError:
		o.Logger.Error("sync failed", "error", ev.Err)
	}
}
