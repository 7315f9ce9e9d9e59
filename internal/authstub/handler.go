package authstub

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/jcarweb/repuestospro-sub005/internal/logger"
)

const maxBodyBytes = 64 << 10

type userJSON struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	Email string `json:"email"`
}

type tokensJSON struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ExpiresAt    int64     `json:"expiresAt"`
	User         *userJSON `json:"user,omitempty"`
}

type loginResponse struct {
	*tokensJSON
	MFARequired bool   `json:"mfaRequired"`
	TempToken   string `json:"tempToken,omitempty"`
	OTP         string `json:"otp,omitempty"`
}

// Handler serves the stub's HTTP API.
type Handler struct {
	svc *Service
	log *zap.Logger
}

// NewHandler returns a Handler for svc.
func NewHandler(svc *Service, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: logger.OrNop(log)}
}

// Router returns the chi router with every route mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Post("/auth/login", h.Login)
	r.Post("/auth/verify-2fa", h.VerifyTwoFactor)
	r.Post("/auth/refresh", h.Refresh)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, err)
		return
	}
	if res.Auth == nil {
		writeJSON(w, http.StatusOK, loginResponse{MFARequired: true, TempToken: res.TempToken, OTP: res.OTP})
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{tokensJSON: toJSON(res.Auth)})
}

func (h *Handler) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TempToken string `json:"tempToken"`
		Code      string `json:"code"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.VerifyTwoFactor(r.Context(), req.TempToken, req.Code)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJSON(res))
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.fail(w, err)
		return
	}
	out := toJSON(res)
	out.User = nil
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidRefreshToken),
		errors.Is(err, ErrRefreshTokenReuse),
		errors.Is(err, ErrInvalidChallenge),
		errors.Is(err, ErrInvalidCode):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		h.log.Error("authstub request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func toJSON(a *AuthResult) *tokensJSON {
	return &tokensJSON{
		AccessToken:  a.AccessToken,
		RefreshToken: a.RefreshToken,
		ExpiresAt:    a.ExpiresAt.UnixMilli(),
		User:         &userJSON{ID: a.User.ID, Name: a.User.Name, Role: a.User.Role, Email: a.User.Email},
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
