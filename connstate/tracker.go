package connstate

import bt "github.com/bluetuith-org/adapterd/api/bluetooth"

// Counters holds the number of profile connections in each
// transitional or connected state, for a single profile.
type Counters struct {
	Connecting    uint32 `json:"connecting"`
	Connected     uint32 `json:"connected"`
	Disconnecting uint32 `json:"disconnecting"`
}

// bucket returns the counter for state, or nil for StateDisconnected,
// which is not counted.
func (c *Counters) bucket(state bt.ConnState) *uint32 {
	switch state {
	case bt.StateConnecting:
		return &c.Connecting

	case bt.StateConnected:
		return &c.Connected

	case bt.StateDisconnecting:
		return &c.Disconnecting
	}

	return nil
}

// profileHash is the aggregate state of a profile across its devices,
// and the number of devices that share it.
type profileHash struct {
	state   bt.ConnState
	devices int
}

// outcome is the result of folding one connection event into the tracker.
type outcome struct {
	underflow bool

	changed         bool
	prevAdapterConn bt.ConnState
	newAdapterConn  bt.ConnState
}

// tracker aggregates per-profile, per-device connection events into a single
// adapter-wide connection state. It is not safe for concurrent use.
type tracker struct {
	counters map[bt.ProfileID]*Counters
	hashes   map[bt.ProfileID]profileHash
	state    bt.ConnState
}

func newTracker() *tracker {
	return &tracker{
		counters: make(map[bt.ProfileID]*Counters),
		hashes:   make(map[bt.ProfileID]profileHash),
		state:    bt.StateDisconnected,
	}
}

// apply folds a prev -> next transition of profile into the tracker.
// A decrement of an empty bucket is reported as an underflow and skipped.
func (t *tracker) apply(profile bt.ProfileID, prev, next bt.ConnState) outcome {
	var out outcome

	counters, ok := t.counters[profile]
	if !ok {
		counters = &Counters{}
		t.counters[profile] = counters
	}

	if b := counters.bucket(prev); b != nil {
		if *b == 0 {
			out.underflow = true
		} else {
			*b--
		}
	}

	t.updateHash(profile, next)

	if b := counters.bucket(next); b != nil {
		*b++
	}

	out.prevAdapterConn = t.state
	out.newAdapterConn = t.derive()
	out.changed = out.prevAdapterConn != out.newAdapterConn
	t.state = out.newAdapterConn

	return out
}

// updateHash updates the aggregate state of profile. A Connected event, or
// a Connecting event while the profile is not Connected, restarts the count.
// A repeat of the current state adds a device. Any other state removes a
// device; while other devices remain, a Connected or Connecting aggregate
// state is kept.
func (t *tracker) updateHash(profile bt.ProfileID, next bt.ConnState) {
	cur, ok := t.hashes[profile]

	switch {
	case !ok:
		cur = profileHash{state: next, devices: 1}

	case next == bt.StateConnected,
		next == bt.StateConnecting && cur.state != bt.StateConnected:
		cur = profileHash{state: next, devices: 1}

	case next == cur.state:
		cur.devices++

	case cur.devices > 1:
		cur.devices--
		if cur.state != bt.StateConnected && cur.state != bt.StateConnecting {
			cur.state = next
		}

	default:
		cur = profileHash{state: next, devices: 1}
	}

	t.hashes[profile] = cur
}

// derive computes the adapter-wide state from all counters, in the
// dominance order Connected > Connecting > Disconnecting > Disconnected.
func (t *tracker) derive() bt.ConnState {
	var connecting, disconnecting bool

	for _, c := range t.counters {
		if c.Connected > 0 {
			return bt.StateConnected
		}

		connecting = connecting || c.Connecting > 0
		disconnecting = disconnecting || c.Disconnecting > 0
	}

	switch {
	case connecting:
		return bt.StateConnecting

	case disconnecting:
		return bt.StateDisconnecting
	}

	return bt.StateDisconnected
}

// profileState returns the aggregate state of profile.
func (t *tracker) profileState(profile bt.ProfileID) bt.ConnState {
	if h, ok := t.hashes[profile]; ok {
		return h.state
	}

	return bt.StateDisconnected
}

// snapshot returns a deep copy of the tracker.
func (t *tracker) snapshot() *tracker {
	s := &tracker{
		counters: make(map[bt.ProfileID]*Counters, len(t.counters)),
		hashes:   make(map[bt.ProfileID]profileHash, len(t.hashes)),
		state:    t.state,
	}

	for p, c := range t.counters {
		copied := *c
		s.counters[p] = &copied
	}

	for p, h := range t.hashes {
		s.hashes[p] = h
	}

	return s
}
