package handlers

import (
	"net/http"

	"github.com/trip-planner/planner/internal/api/middleware"
	"github.com/trip-planner/planner/internal/apperr"
	"github.com/trip-planner/planner/internal/auth"
	"github.com/trip-planner/planner/internal/profile"
)

// TokenRequest hands the planner the access token issued at login.
type TokenRequest struct {
	Token string `json:"token"`
}

// SessionResponse describes the authenticated user.
type SessionResponse struct {
	Authenticated bool  `json:"authenticated"`
	UserID        int64 `json:"userId,omitempty"`
}

// CheckNickname validates a nickname and asks whether it is free (?nickname=).
// Invalid nicknames answer 422 with the validation message.
func CheckNickname(svc *profile.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.Check(r.Context(), r.URL.Query().Get("nickname"))
		if err != nil {
			middleware.WriteError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, res)
	}
}

// GetSession reports who the planner acts for.
func GetSession(tokens *auth.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, session(tokens))
	}
}

// SetSession stores the access token used against the backend.
func SetSession(tokens *auth.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TokenRequest
		if !decode(w, r, &req) {
			return
		}
		if req.Token == "" {
			middleware.WriteError(w, apperr.Validation("token is required", map[string]any{"token": "required"}))
			return
		}
		if err := tokens.Set(req.Token); err != nil {
			tokens.Clear()
			middleware.WriteError(w, apperr.Unauthorized("access token is not readable"))
			return
		}
		middleware.WriteJSON(w, http.StatusOK, session(tokens))
	}
}

// ClearSession forgets the access token.
func ClearSession(tokens *auth.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokens.Clear()
		w.WriteHeader(http.StatusNoContent)
	}
}

func session(tokens *auth.Store) SessionResponse {
	id, err := tokens.UserID()
	if err != nil {
		return SessionResponse{}
	}
	return SessionResponse{Authenticated: true, UserID: id}
}
