// Package garden holds the content lifecycle model: states, scoring, and the
// rules that move a unit from Planted to Composted. Nothing here does I/O.
package garden

import (
	"fmt"
	"time"
)

// State is a stage in a content unit's lifecycle.
type State string

const (
	Planted   State = "planted"
	Sprouting State = "sprouting"
	Blooming  State = "blooming"
	Wilting   State = "wilting"
	Composted State = "composted"
)

var stateOrder = map[State]int{
	Planted:   0,
	Sprouting: 1,
	Blooming:  2,
	Wilting:   3,
	Composted: 4,
}

// Ordinal returns the position of s in the lifecycle, or -1 if s is unknown.
func (s State) Ordinal() int {
	if o, ok := stateOrder[s]; ok {
		return o
	}
	return -1
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == Composted }

// ParseState validates a state name.
func ParseState(v string) (State, error) {
	s := State(v)
	if s.Ordinal() < 0 {
		return "", fmt.Errorf("unknown state %q", v)
	}
	return s, nil
}

// Privacy is the audience scope of a content unit.
type Privacy string

const (
	Public      Privacy = "public"
	Connections Privacy = "connections"
	InnerCircle Privacy = "inner_circle"
	Community   Privacy = "community"
	Private     Privacy = "private"
)

// ParsePrivacy validates a privacy scope. Empty defaults to Public.
func ParsePrivacy(v string) (Privacy, error) {
	switch p := Privacy(v); p {
	case "":
		return Public, nil
	case Public, Connections, InnerCircle, Community, Private:
		return p, nil
	default:
		return "", fmt.Errorf("unknown privacy scope %q", v)
	}
}

// Polarity is the direction of a vote.
type Polarity string

const (
	Positive Polarity = "positive"
	Negative Polarity = "negative"
)

// ParsePolarity validates a vote polarity.
func ParsePolarity(v string) (Polarity, error) {
	switch p := Polarity(v); p {
	case Positive, Negative:
		return p, nil
	default:
		return "", fmt.Errorf("unknown polarity %q", v)
	}
}

// Lifecycle tuning.
const (
	SproutDelay     = time.Hour
	BloomThreshold  = 10.0
	WiltWindow      = 24 * time.Hour
	DefaultLifespan = 168 * time.Hour
	MaxLifespan     = 30 * 24 * time.Hour
	VoteAdjustment  = 6 * time.Hour
	ToxicThreshold  = 5
	DiscoveryWindow = 24 * time.Hour
)

// Unit is a piece of user content under lifecycle management.
// Zero-valued WiltsAt, ComposedAt and ArchivedAt mean unset.
type Unit struct {
	ID       string
	AuthorID string
	Body     string
	MediaRef string
	State    State
	Privacy  Privacy

	CreatedAt  time.Time
	WiltsAt    time.Time
	ComposedAt time.Time
	ArchivedAt time.Time

	ViewCount            int64
	NetVoteScore         int64
	ShareHours           float64
	ReputationMultiplier float64

	Version int64
}

// Comment is a votable child of a content unit.
type Comment struct {
	ID            string
	UnitID        string
	AuthorID      string
	Body          string
	PositiveCount int64
	NegativeCount int64
	RetiredAt     time.Time
	CreatedAt     time.Time
}

// NetScore is positive minus negative votes.
func (c Comment) NetScore() int64 { return c.PositiveCount - c.NegativeCount }

// IsToxic reports whether enough negative votes have landed to retire the comment.
func (c Comment) IsToxic() bool { return c.NegativeCount >= ToxicThreshold }

// IsNourishing reports a net positive reception.
func (c Comment) IsNourishing() bool { return c.NetScore() > 0 }
