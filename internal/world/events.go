package world

// Event is a side effect requested by a state transition. Transition
// functions mutate only their own entity and hand everything that
// crosses an entity boundary back to the caller as events, which keeps
// the transition tables testable in isolation.
type Event interface {
	event()
}

// PlayerDamageEvent asks the server to deliver damage plus a knockback
// impulse to one player.
type PlayerDamageEvent struct {
	PlayerID uint32
	Damage   float32
	Knock    Vec3
}

func (PlayerDamageEvent) event() {}

// RestartEvent asks the server to reset the whole encounter.
type RestartEvent struct {
	Reason      string
	RequestedBy uint32
}

func (RestartEvent) event() {}
