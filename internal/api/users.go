package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/willtech3/powertoken/internal/api/respond"
	"github.com/willtech3/powertoken/internal/clock"
	"github.com/willtech3/powertoken/internal/model"
	"github.com/willtech3/powertoken/internal/scoring"
	"github.com/willtech3/powertoken/internal/store"
)

const maxListLimit = 500

// UserHandler exposes per-user progress and history.
type UserHandler struct {
	store store.Store
	clock clock.Clock
}

func NewUserHandler(s store.Store, c clock.Clock) *UserHandler {
	return &UserHandler{store: s, clock: c}
}

// ProgressResponse is the body of GET /api/users/{username}/progress.
type ProgressResponse struct {
	Username string  `json:"username"`
	Date     string  `json:"date"`
	Score    float64 `json:"score"`
	Possible int     `json:"possible"`
	Progress float64 `json:"progress"`
	Cached   float64 `json:"cached"`
}

// GetProgress handles GET /api/users/{username}/progress?date=YYYY-MM-DD.
// The date defaults to today.
func (h *UserHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	date := clock.Today(h.clock)
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := time.Parse(model.DateLayout, raw)
		if err != nil {
			respond.WriteBadRequest(w, "date must be YYYY-MM-DD")
			return
		}
		date = d
	}

	resp := ProgressResponse{Username: user.Username, Date: date.Format(model.DateLayout)}
	day, err := h.store.Days().GetByDate(r.Context(), user.ID, date)
	if err != nil {
		if respondUnlessNotFound(w, err) {
			return
		}
		respond.WriteJSON(w, http.StatusOK, resp)
		return
	}
	score, possible, err := scoring.New(h.store, h.clock).Score(r.Context(), day)
	if err != nil {
		respond.WriteStoreError(w, err)
		return
	}
	resp.Score = score
	resp.Possible = possible
	resp.Progress = scoring.Progress(score, possible)
	resp.Cached = day.ComputedProgress
	respond.WriteJSON(w, http.StatusOK, resp)
}

// ListLogs handles GET /api/users/{username}/logs?limit=N.
func (h *UserHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	logs, err := h.store.Logs().ListByUser(r.Context(), user.ID, limit)
	if err != nil {
		respond.WriteStoreError(w, err)
		return
	}
	if logs == nil {
		logs = []*model.Log{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"logs": logs, "count": len(logs)})
}

// ListSyncErrors handles GET /api/users/{username}/sync-errors?limit=N.
func (h *UserHandler) ListSyncErrors(w http.ResponseWriter, r *http.Request) {
	user, ok := h.user(w, r)
	if !ok {
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	errs, err := h.store.SyncErrors().ListByUser(r.Context(), user.ID, limit)
	if err != nil {
		respond.WriteStoreError(w, err)
		return
	}
	if errs == nil {
		errs = []*model.SyncError{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"errors": errs, "count": len(errs)})
}

func (h *UserHandler) user(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	username := mux.Vars(r)["username"]
	u, err := h.store.Users().GetByUsername(r.Context(), username)
	if err != nil {
		respond.WriteStoreError(w, err)
		return nil, false
	}
	return u, true
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 50, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > maxListLimit {
		respond.WriteBadRequest(w, "limit must be between 1 and 500")
		return 0, false
	}
	return n, true
}

// respondUnlessNotFound writes err and reports true unless it is ErrNotFound.
func respondUnlessNotFound(w http.ResponseWriter, err error) bool {
	if errors.Is(err, model.ErrNotFound) {
		return false
	}
	respond.WriteStoreError(w, err)
	return true
}
