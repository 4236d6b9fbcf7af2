package http

import (
	"errors"
	"net/http"

	"horizon/internal/domain/user"
)

type UserHandler struct {
	identity user.Provider
}

func NewUserHandler(identity user.Provider) *UserHandler {
	return &UserHandler{identity: identity}
}

// HandleMe echoes the authenticated caller.
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	u, err := h.identity.LoggedInUser(r.Context())
	if errors.Is(err, user.ErrNotLoggedIn) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, u)
}
