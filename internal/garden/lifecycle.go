package garden

import "time"

// Next returns the state u should move to at now. It returns u.State when no
// rule fires. Only one step is taken; callers that want to settle a unit
// call Settle.
func Next(u Unit, now time.Time) State {
	switch u.State {
	case Planted:
		if now.Sub(u.CreatedAt) >= SproutDelay {
			return Sprouting
		}
	case Sprouting:
		if WeightedGrowth(u) >= BloomThreshold {
			return Blooming
		}
		// Stalled sprouts still age out once their wilt window opens.
		if !u.WiltsAt.IsZero() && inWiltWindow(u, now) {
			return Wilting
		}
	case Blooming:
		if inWiltWindow(u, now) {
			return Wilting
		}
	case Wilting:
		if u.WiltsAt.IsZero() || !now.Before(u.WiltsAt) {
			return Composted
		}
	}
	return u.State
}

func inWiltWindow(u Unit, now time.Time) bool {
	if u.WiltsAt.IsZero() {
		return true
	}
	return !now.Before(u.WiltsAt.Add(-WiltWindow))
}

// Enter moves u into state to, filling the timestamps that stage requires.
// It does not check that the move is legal.
func Enter(u *Unit, to State, now time.Time) {
	switch to {
	case Sprouting:
		if u.WiltsAt.IsZero() {
			u.WiltsAt = u.CreatedAt.Add(DefaultLifespan)
		}
	case Wilting:
		if u.WiltsAt.IsZero() {
			u.WiltsAt = now.Add(WiltWindow)
		}
	case Composted:
		u.ComposedAt = now
		if u.WiltsAt.IsZero() {
			u.WiltsAt = now
		}
	}
	u.State = to
}

// Settle applies Next repeatedly until the unit stops moving and returns
// every state it passed through, in order. A settled unit yields no steps,
// so running Settle twice at the same instant changes nothing the second time.
func Settle(u *Unit, now time.Time) []State {
	var steps []State
	for range len(stateOrder) {
		to := Next(*u, now)
		if to == u.State {
			break
		}
		Enter(u, to, now)
		steps = append(steps, to)
	}
	return steps
}

// CanForce reports whether an operator may move a unit from one state to
// another: one stage forward, or straight to Composted from any live stage.
func CanForce(from, to State) bool {
	if from.Terminal() || from.Ordinal() < 0 || to.Ordinal() < 0 {
		return false
	}
	if to == Composted {
		return true
	}
	return to.Ordinal() == from.Ordinal()+1
}

// Compost forces u into the terminal state immediately, expiring it now.
// Used when a comment turns toxic.
func Compost(u *Unit, now time.Time) {
	u.State = Composted
	u.ComposedAt = now
	u.WiltsAt = now
}
