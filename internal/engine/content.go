package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lazypower/seedbed/internal/garden"
	"github.com/lazypower/seedbed/internal/store"
)

// PlantRequest describes a new content unit.
type PlantRequest struct {
	AuthorID string
	Body     string
	MediaRef string
	Privacy  garden.Privacy
}

// Plant creates a unit in the Planted state. Its reputation multiplier starts
// at the author's current standing; the wilt instant is set on sprouting.
func (e *Engine) Plant(ctx context.Context, req PlantRequest) (*garden.Unit, error) {
	if req.AuthorID == "" {
		return nil, fmt.Errorf("%w: author required", ErrInvalidInput)
	}
	privacy, err := garden.ParsePrivacy(string(req.Privacy))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	body := cleanText(req.Body, maxBodyChars)
	media := cleanText(req.MediaRef, maxMediaRef)
	if body == "" && media == "" {
		return nil, ErrEmptyBody
	}

	rep, err := e.DB.Reputation(ctx, req.AuthorID)
	if err != nil {
		return nil, fmt.Errorf("author reputation: %w", err)
	}

	u := &garden.Unit{
		ID:                   uuid.NewString(),
		AuthorID:             req.AuthorID,
		Body:                 body,
		MediaRef:             media,
		State:                garden.Planted,
		Privacy:              privacy,
		CreatedAt:            e.now(),
		ReputationMultiplier: garden.ClampReputation(rep),
	}
	if err := e.DB.CreateUnit(ctx, u); err != nil {
		return nil, fmt.Errorf("plant: %w", err)
	}

	e.logger.Debug("planted",
		zap.String("unit_id", u.ID),
		zap.String("author_id", u.AuthorID),
		zap.String("privacy", string(u.Privacy)))
	return u, nil
}

// RecordView counts one view of a unit.
func (e *Engine) RecordView(ctx context.Context, unitID string) error {
	if err := e.DB.IncrementViews(ctx, unitID); err != nil {
		return fmt.Errorf("record view: %w", err)
	}
	return nil
}

// RecordShare adds share weight, measured in hours of exposure, to a unit.
func (e *Engine) RecordShare(ctx context.Context, unitID string, hours float64) error {
	if hours < 0 {
		return fmt.Errorf("%w: negative share hours", ErrInvalidInput)
	}
	if err := e.DB.AddShareHours(ctx, unitID, hours); err != nil {
		return fmt.Errorf("record share: %w", err)
	}
	return nil
}

// AddComment attaches a comment to a live unit after moderation review.
// A moderation outage lets the comment through; a block rejects it.
func (e *Engine) AddComment(ctx context.Context, unitID, authorID, body string) (*garden.Comment, error) {
	if authorID == "" {
		return nil, fmt.Errorf("%w: author required", ErrInvalidInput)
	}
	body = cleanText(body, maxCommentChars)
	if body == "" {
		return nil, ErrEmptyBody
	}

	u, err := e.DB.GetUnit(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("add comment: %w", err)
	}
	if u.State.Terminal() {
		return nil, ErrComposted
	}

	decision, err := e.Moderator.Review(ctx, body)
	switch {
	case err != nil:
		e.logger.Warn("moderation unavailable, accepting comment",
			zap.String("unit_id", unitID),
			zap.Error(err))
	case decision.Blocked():
		e.logger.Info("comment blocked",
			zap.String("unit_id", unitID),
			zap.String("author_id", authorID),
			zap.String("reason", decision.Reason))
		return nil, ErrRejected
	}

	c := &garden.Comment{
		ID:        uuid.NewString(),
		UnitID:    unitID,
		AuthorID:  authorID,
		Body:      body,
		CreatedAt: e.now(),
	}
	if err := e.DB.CreateComment(ctx, c); err != nil {
		return nil, fmt.Errorf("add comment: %w", err)
	}
	return c, nil
}

// ListComments returns the readable comments on a unit.
func (e *Engine) ListComments(ctx context.Context, unitID string) ([]garden.Comment, error) {
	if _, err := e.DB.GetUnit(ctx, unitID); err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	comments, err := e.DB.ListComments(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

var _ ReputationSink = (*store.DB)(nil)
