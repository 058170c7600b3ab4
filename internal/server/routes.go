package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/seedbed/internal/engine"
	"github.com/lazypower/seedbed/internal/garden"
)

type unitJSON struct {
	ID                   string     `json:"id"`
	AuthorID             string     `json:"author_id"`
	Body                 string     `json:"body"`
	MediaRef             string     `json:"media_ref,omitempty"`
	State                string     `json:"state"`
	Privacy              string     `json:"privacy"`
	CreatedAt            time.Time  `json:"created_at"`
	WiltsAt              *time.Time `json:"wilts_at,omitempty"`
	ComposedAt           *time.Time `json:"composted_at,omitempty"`
	ViewCount            int64      `json:"view_count"`
	NetVoteScore         int64      `json:"net_vote_score"`
	ShareHours           float64    `json:"share_hours"`
	ReputationMultiplier float64    `json:"reputation_multiplier"`
	GrowthScore          float64    `json:"growth_score"`
}

type commentJSON struct {
	ID            string     `json:"id"`
	UnitID        string     `json:"unit_id"`
	AuthorID      string     `json:"author_id"`
	Body          string     `json:"body"`
	PositiveCount int64      `json:"positive_count"`
	NegativeCount int64      `json:"negative_count"`
	NetScore      int64      `json:"net_score"`
	RetiredAt     *time.Time `json:"retired_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func optTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func toUnitJSON(u garden.Unit) unitJSON {
	return unitJSON{
		ID:                   u.ID,
		AuthorID:             u.AuthorID,
		Body:                 u.Body,
		MediaRef:             u.MediaRef,
		State:                string(u.State),
		Privacy:              string(u.Privacy),
		CreatedAt:            u.CreatedAt,
		WiltsAt:              optTime(u.WiltsAt),
		ComposedAt:           optTime(u.ComposedAt),
		ViewCount:            u.ViewCount,
		NetVoteScore:         u.NetVoteScore,
		ShareHours:           u.ShareHours,
		ReputationMultiplier: u.ReputationMultiplier,
		GrowthScore:          garden.WeightedGrowth(u),
	}
}

func toCommentJSON(c garden.Comment) commentJSON {
	return commentJSON{
		ID:            c.ID,
		UnitID:        c.UnitID,
		AuthorID:      c.AuthorID,
		Body:          c.Body,
		PositiveCount: c.PositiveCount,
		NegativeCount: c.NegativeCount,
		NetScore:      c.NetScore(),
		RetiredAt:     optTime(c.RetiredAt),
		CreatedAt:     c.CreatedAt,
	}
}

func (s *Server) handlePlant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Body     string `json:"body"`
		MediaRef string `json:"media_ref"`
		Privacy  string `json:"privacy"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}

	u, err := s.engine.Plant(r.Context(), engine.PlantRequest{
		AuthorID: viewer(r),
		Body:     req.Body,
		MediaRef: req.MediaRef,
		Privacy:  garden.Privacy(req.Privacy),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUnitJSON(*u))
}

func (s *Server) handleGetUnit(w http.ResponseWriter, r *http.Request) {
	u, err := s.feeds.Get(r.Context(), viewer(r), chi.URLParam(r, "unitID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUnitJSON(*u))
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RecordView(r.Context(), chi.URLParam(r, "unitID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Hours float64 `json:"hours"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.engine.RecordShare(r.Context(), chi.URLParam(r, "unitID"), req.Hours); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		State string `json:"state"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}
	to, err := garden.ParseState(req.State)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	u, err := s.engine.ForceTransition(r.Context(), chi.URLParam(r, "unitID"), to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUnitJSON(*u))
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Body string `json:"body"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}

	c, err := s.engine.AddComment(r.Context(), chi.URLParam(r, "unitID"), viewer(r), req.Body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCommentJSON(*c))
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	unitID := chi.URLParam(r, "unitID")
	// Comments inherit the parent's audience.
	if _, err := s.feeds.Get(r.Context(), viewer(r), unitID); err != nil {
		s.writeError(w, r, err)
		return
	}

	comments, err := s.engine.ListComments(r.Context(), unitID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]commentJSON, len(comments))
	for i, c := range comments {
		out[i] = toCommentJSON(c)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"unit_id":  unitID,
		"count":    len(out),
		"comments": out,
	})
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Polarity string `json:"polarity"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}

	res, err := s.engine.ApplyVote(r.Context(), chi.URLParam(r, "commentID"), viewer(r), garden.Polarity(req.Polarity))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := map[string]any{
		"comment": toCommentJSON(res.Comment),
		"changed": res.Changed,
		"toxic":   res.Toxic,
	}
	if res.Unit != nil {
		out["unit"] = toUnitJSON(*res.Unit)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRetractVote(w http.ResponseWriter, r *http.Request) {
	c, err := s.engine.RetractVote(r.Context(), chi.URLParam(r, "commentID"), viewer(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comment": toCommentJSON(*c)})
}

type feedFunc func(ctx context.Context, viewerID string, limit int) ([]garden.Unit, error)

func (s *Server) serveFeed(name string, fn feedFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		units, err := fn(r.Context(), viewer(r), limitParam(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeUnits(w, map[string]any{"feed": name}, units)
	}
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	s.serveFeed("discovery", s.feeds.Discovery)(w, r)
}

func (s *Server) handleFollowing(w http.ResponseWriter, r *http.Request) {
	s.serveFeed("following", s.feeds.Following)(w, r)
}

func (s *Server) handlePrivate(w http.ResponseWriter, r *http.Request) {
	s.serveFeed("private", s.feeds.Private)(w, r)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	units, err := s.feeds.Search(r.Context(), viewer(r), query, limitParam(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeUnits(w, map[string]any{"query": query}, units)
}

func writeUnits(w http.ResponseWriter, out map[string]any, units []garden.Unit) {
	list := make([]unitJSON, len(units))
	for i, u := range units {
		list[i] = toUnitJSON(u)
	}
	out["count"] = len(list)
	out["units"] = list
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLifecycleRun(w http.ResponseWriter, r *http.Request) {
	sum, err := s.engine.RunLifecyclePass(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"evaluated":   sum.Evaluated,
		"sprouted":    sum.Sprouted,
		"bloomed":     sum.Bloomed,
		"wilted":      sum.Wilted,
		"composted":   sum.Composted,
		"errors":      len(sum.Errors),
		"duration_ms": sum.Duration.Milliseconds(),
	})
}

func (s *Server) handleArchiveRun(w http.ResponseWriter, r *http.Request) {
	sum, err := s.engine.RunArchivePass(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"archived":       sum.Archived,
		"markers_pruned": sum.MarkersPruned,
	})
}
