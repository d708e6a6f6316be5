package user

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
)

type Handler struct {
	Service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error writing response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// errorMessage strips the sentinel prefix so clients see the detail only.
func errorMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, ": "); i >= 0 && errors.Is(err, ErrInvalidInput) {
		return msg[i+2:]
	}
	return msg
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := h.Service.Register(r.Context(), &req)
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrDuplicateEmail):
		writeError(w, http.StatusBadRequest, errorMessage(err))
		return
	case err != nil:
		log.Printf("❌ Register Error: %v", err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	log.Printf("✅ New user registered: %s", u.Email)
	writeJSON(w, http.StatusOK, RegisterResponse{Success: true, User: u.Public()})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.Service.Login(r.Context(), &req)
	switch {
	case errors.Is(err, ErrInvalidInput):
		writeError(w, http.StatusBadRequest, errorMessage(err))
		return
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrBadCredential):
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	case err != nil:
		log.Printf("❌ Login Error: %v", err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	log.Printf("✅ Login: %s", res.User.Email)
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	users := h.Service.SearchUsers(r.Context(), r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, users)
}
