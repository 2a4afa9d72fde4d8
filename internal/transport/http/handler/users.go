package handler

import (
	"net/http"

	"github.com/go-qr-auth/internal/application/user"
	"github.com/go-qr-auth/internal/domain"
	"github.com/go-qr-auth/internal/transport/http/middleware"
)

// UserHandler handles the authenticated user's own profile.
type UserHandler struct {
	svc   user.Service
	debug bool
}

func NewUserHandler(svc user.Service, debug bool) *UserHandler {
	return &UserHandler{svc: svc, debug: debug}
}

func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required.")
		return
	}
	u, err := h.svc.GetProfile(r.Context(), p.UserID)
	if err != nil {
		respondError(w, r, err, h.debug)
		return
	}
	writeJSON(w, http.StatusOK, ProfileEnvelope{Success: true, User: u})
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required.")
		return
	}
	var req domain.UpdateProfileRequest
	if err := decodeStrict(w, r, &req, "Only firstName, lastName, email, dateOfBirth and gender can be updated"); err != nil {
		respondError(w, r, err, h.debug)
		return
	}
	u, err := h.svc.UpdateProfile(r.Context(), p.UserID, req)
	if err != nil {
		respondError(w, r, err, h.debug)
		return
	}
	writeJSON(w, http.StatusOK, ProfileEnvelope{Success: true, Message: "Profile updated.", User: u})
}
