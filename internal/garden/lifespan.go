package garden

import "time"

// LifespanCap is the latest instant u may be kept alive until.
func LifespanCap(u Unit) time.Time {
	return u.CreatedAt.Add(MaxLifespan)
}

// ExtendWilt pushes the wilt instant out by d, never past the lifespan cap.
// An unset wilt instant extends from now.
func ExtendWilt(u Unit, d time.Duration, now time.Time) time.Time {
	base := u.WiltsAt
	if base.IsZero() {
		base = now
	}
	next := base.Add(d)
	if limit := LifespanCap(u); next.After(limit) {
		next = limit
	}
	return next
}

// ReduceWilt pulls the wilt instant in by d, never earlier than now.
// An unset wilt instant stays unset.
func ReduceWilt(u Unit, d time.Duration, now time.Time) time.Time {
	if u.WiltsAt.IsZero() {
		return u.WiltsAt
	}
	next := u.WiltsAt.Add(-d)
	if next.Before(now) {
		next = now
	}
	return next
}
