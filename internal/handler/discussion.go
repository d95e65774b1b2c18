package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/discussions/internal/apperror"
	"github.com/sakif/discussions/internal/auth"
	"github.com/sakif/discussions/internal/model"
	"github.com/sakif/discussions/internal/service"
)

// DiscussionHandler exposes threads, comments, and votes over HTTP.
type DiscussionHandler struct {
	discussions *service.DiscussionService
	logger      *slog.Logger
}

func NewDiscussionHandler(discussions *service.DiscussionService, logger *slog.Logger) *DiscussionHandler {
	return &DiscussionHandler{discussions: discussions, logger: logger}
}

// requireUser pulls the signed-in user or writes a 401. Routes behind
// RequireUser never hit the failure branch; it guards against wiring
// mistakes.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthenticated())
		return "", false
	}
	return user.ID, true
}

// HandleList returns threads newest-first.
//
// HTTP: GET /api/discussions?limit=20&offset=0
func (h *DiscussionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	discussions, err := h.discussions.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, discussions)
}

// HandleCreate starts a thread.
//
// HTTP: POST /api/discussions (requires auth)
// BODY: {"title": "...", "body": "..."}
func (h *DiscussionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	discussion, err := h.discussions.Create(r.Context(), userID, req.Title, req.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, discussion)
}

// HandleGet returns one thread with its score.
//
// HTTP: GET /api/discussions/{id}
func (h *DiscussionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	discussion, err := h.discussions.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, discussion)
}

// HandleUpdate edits a thread. Author-only.
//
// HTTP: PUT /api/discussions/{id} (requires auth)
func (h *DiscussionHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	discussion, err := h.discussions.Update(r.Context(), r.PathValue("id"), userID, req.Title, req.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, discussion)
}

// HandleDelete removes a thread with its comments and votes. Author-only.
//
// HTTP: DELETE /api/discussions/{id} (requires auth)
func (h *DiscussionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.discussions.Delete(r.Context(), r.PathValue("id"), userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListComments returns a thread's replies oldest-first.
//
// HTTP: GET /api/discussions/{id}/comments
func (h *DiscussionHandler) HandleListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.discussions.ListComments(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

// HandleAddComment replies to a thread.
//
// HTTP: POST /api/discussions/{id}/comments (requires auth)
// BODY: {"body": "..."}
func (h *DiscussionHandler) HandleAddComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	comment, err := h.discussions.AddComment(r.Context(), r.PathValue("id"), userID, req.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

// HandleDeleteComment removes a reply. Author-only.
//
// HTTP: DELETE /api/comments/{id} (requires auth)
func (h *DiscussionHandler) HandleDeleteComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.discussions.DeleteComment(r.Context(), r.PathValue("id"), userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleVote casts or clears a vote on a discussion or comment.
//
// HTTP: PUT    /api/{target}/{id}/vote (requires auth), BODY {"value": 1}
// HTTP: DELETE /api/{target}/{id}/vote (requires auth)
//
// target is "discussions" or "comments"; the route registration pins the
// VoteTarget, so handlers come from the two closure constructors below.
func (h *DiscussionHandler) HandleVote(target model.VoteTarget) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}

		var req struct {
			Value int `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
			return
		}

		if err := h.discussions.CastVote(r.Context(), userID, target, r.PathValue("id"), req.Value); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleUnvote withdraws the caller's vote.
func (h *DiscussionHandler) HandleUnvote(target model.VoteTarget) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}

		if err := h.discussions.RemoveVote(r.Context(), userID, target, r.PathValue("id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
