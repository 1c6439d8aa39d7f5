package handlers

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/wolfman30/frontdesk-calendar/internal/http/middleware"
	"github.com/wolfman30/frontdesk-calendar/pkg/logging"
)

// AuthHandler exchanges the front desk's shared password for a session token.
type AuthHandler struct {
	password string
	secret   string
	ttl      time.Duration
	now      func() time.Time
	logger   *logging.Logger
}

// NewAuthHandler creates a login handler. ttl defaults to twelve hours.
func NewAuthHandler(password, secret string, ttl time.Duration, logger *logging.Logger) *AuthHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &AuthHandler{
		password: password,
		secret:   secret,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger.Component("http.auth"),
	}
}

// LoginRequest is the login form.
type LoginRequest struct {
	Password string `json:"password"`
}

// LoginResponse carries the bearer token for /api requests.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Password == "" {
		jsonError(w, "password is required", http.StatusBadRequest)
		return
	}
	if h.password == "" || subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.password)) != 1 {
		h.logger.Warn("login rejected", "remote_ip", r.RemoteAddr)
		jsonError(w, "incorrect password", http.StatusUnauthorized)
		return
	}
	token, expires, err := middleware.IssueStaffToken(h.secret, "frontdesk", h.ttl, h.now())
	if err != nil {
		h.logger.Error("issue session token failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, ExpiresAt: expires})
}
