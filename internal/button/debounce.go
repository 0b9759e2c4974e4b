package button

import "time"

// Edge is the direction of a level change.
type Edge int

const (
	Falling Edge = iota
	Rising
)

func (e Edge) String() string {
	if e == Rising {
		return "rising"
	}
	return "falling"
}

// Event is one observed level change of the line.
type Event struct {
	Edge Edge
	At   time.Time
}

// Debouncer turns raw edges into a single hold-to-fire trigger.
//
// A level change only becomes stable once it has persisted for Debounce. A
// stable press lasting Hold, measured from its first edge, fires once; a
// release before that discards the press. After firing the Debouncer ignores
// all further input.
type Debouncer struct {
	Debounce  time.Duration
	Hold      time.Duration
	ActiveLow bool

	raw        bool
	rawSince   time.Time
	stable     bool
	pressSince time.Time
	fired      bool
}

func (d *Debouncer) pressed(e Edge) bool {
	if d.ActiveLow {
		return e == Falling
	}
	return e == Rising
}

// Observe feeds an edge and reports whether the trigger fired.
func (d *Debouncer) Observe(ev Event) bool {
	if d.fired {
		return false
	}
	if p := d.pressed(ev.Edge); p != d.raw {
		d.raw = p
		d.rawSince = ev.At
	}
	return d.Tick(ev.At)
}

// Tick advances time without a new edge and reports whether the trigger
// fired.
func (d *Debouncer) Tick(now time.Time) bool {
	if d.fired {
		return false
	}
	if d.raw != d.stable && now.Sub(d.rawSince) >= d.Debounce {
		d.stable = d.raw
		if d.stable {
			d.pressSince = d.rawSince
		}
	}
	if d.stable && d.raw && now.Sub(d.pressSince) >= d.Hold {
		d.fired = true
		return true
	}
	return false
}

// Pressed reports the debounced state.
func (d *Debouncer) Pressed() bool {
	return d.stable
}

// Fired reports whether the trigger has fired.
func (d *Debouncer) Fired() bool {
	return d.fired
}
