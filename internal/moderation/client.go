// Package moderation asks an external reviewer whether comment text may be
// published. The reviewer is opaque: it answers allow or block.
package moderation

import (
	"context"
	"fmt"

	"github.com/lazypower/seedbed/internal/config"
)

// Verdict is a moderation outcome.
type Verdict string

const (
	Allow Verdict = "allow"
	Block Verdict = "block"
)

// Decision holds the result of a review.
type Decision struct {
	Verdict  Verdict
	Reason   string
	Provider string
}

// Blocked reports whether the text must be rejected.
func (d *Decision) Blocked() bool { return d != nil && d.Verdict == Block }

// Client is the interface for moderation providers.
type Client interface {
	Review(ctx context.Context, text string) (*Decision, error)
}

// NewClient creates a moderation client based on the config provider setting.
func NewClient(cfg config.ModerationConfig) (Client, error) {
	switch cfg.Provider {
	case "", "none":
		return AllowAll{}, nil
	case "http":
		if cfg.URL == "" {
			return nil, fmt.Errorf("http moderation provider requires url")
		}
		return NewHTTP(cfg.URL, cfg.Timeout, cfg.Retries), nil
	default:
		return nil, fmt.Errorf("unknown moderation provider: %q", cfg.Provider)
	}
}

// AllowAll approves everything.
type AllowAll struct{}

// Review implements Client.
func (AllowAll) Review(context.Context, string) (*Decision, error) {
	return &Decision{Verdict: Allow, Provider: "none"}, nil
}
