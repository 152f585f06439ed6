package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/kimlik-auth/kimlik"
	"github.com/kimlik-auth/kimlik/middleware"
)

const maxBodyBytes = 1 << 20

// Handler serves the authentication API under /auth/.
type Handler struct {
	engine *kimlik.Engine
	// expiresIn is the access token lifetime in seconds, advertised on
	// every token-issuing response.
	expiresIn int
}

// New builds the route table. Rate-limited routes sit behind the engine's
// per-IP budgets; everything else only gets request metadata injected.
func New(engine *kimlik.Engine) http.Handler {
	h := &Handler{
		engine:    engine,
		expiresIn: int(engine.AccessTokenTTL().Seconds()),
	}
	mux := http.NewServeMux()

	limited := func(action kimlik.RateAction, fn http.HandlerFunc) http.Handler {
		return middleware.RateLimit(engine, action)(fn)
	}

	mux.Handle("POST /auth/register", limited(kimlik.ActionRegister, h.register))
	mux.Handle("POST /auth/verify-email", withMeta(h.verifyEmail))
	mux.Handle("POST /auth/resend-verification", withMeta(h.resendVerification))
	mux.Handle("POST /auth/login", limited(kimlik.ActionLogin, h.login))
	mux.Handle("POST /auth/login/2fa", withMeta(h.confirmLogin2FA))
	mux.Handle("POST /auth/refresh", limited(kimlik.ActionRefresh, h.refresh))
	mux.Handle("POST /auth/logout", withMeta(h.logout))
	mux.Handle("POST /auth/password-reset/request", limited(kimlik.ActionPasswordResetRequest, h.requestPasswordReset))
	mux.Handle("POST /auth/password-reset/confirm", withMeta(h.confirmPasswordReset))

	return mux
}

// withMeta injects client IP and user agent for routes outside the rate
// limiter, which does the same injection itself.
func withMeta(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := kimlik.WithClientIP(r.Context(), middleware.ClientIP(r))
		ctx = kimlik.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorEnvelope{Error: errorBody{
			Code:    "MALFORMED_BODY",
			Message: "request body must be valid JSON",
		}})
		return false
	}
	// Trailing garbage after the JSON document is a client bug.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorEnvelope{Error: errorBody{
			Code:    "MALFORMED_BODY",
			Message: "request body must contain a single JSON document",
		}})
		return false
	}
	return true
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email               string `json:"email"`
		Password            string `json:"password"`
		FirstName           string `json:"first_name"`
		LastName            string `json:"last_name"`
		TermsAccepted       bool   `json:"terms_accepted"`
		KVKKConsentAccepted bool   `json:"kvkk_consent_accepted"`
	}
	if !decode(w, r, &req) {
		return
	}

	user, err := h.engine.Register(r.Context(), kimlik.RegisterInput{
		Email:               req.Email,
		Password:            req.Password,
		FirstName:           req.FirstName,
		LastName:            req.LastName,
		TermsAccepted:       req.TermsAccepted,
		KVKKConsentAccepted: req.KVKKConsentAccepted,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

func (h *Handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !decode(w, r, &req) {
		return
	}
	user, err := h.engine.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"email":          user.Email,
		"email_verified": user.EmailVerified,
	})
}

func (h *Handler) resendVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.engine.ResendVerification(r.Context(), req.Email); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}

	res, err := h.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeErr(w, err)
		return
	}
	if res.RequiresTwoFactor {
		writeJSON(w, http.StatusOK, map[string]any{
			"requires_2fa":    true,
			"challenge_token": res.ChallengeToken,
		})
		return
	}
	writeJSON(w, http.StatusOK, h.loginResponse(res))
}

func (h *Handler) confirmLogin2FA(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChallengeToken string `json:"challenge_token"`
		Code           string `json:"code"`
	}
	if !decode(w, r, &req) {
		return
	}

	res, err := h.engine.ConfirmLogin2FA(r.Context(), req.ChallengeToken, req.Code)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.loginResponse(res))
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decode(w, r, &req) {
		return
	}

	access, err := h.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": access,
		"token_type":   "Bearer",
		"expires_in":   h.expiresIn,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	raw, ok := bearer(r)
	if !ok {
		writeErr(w, kimlik.ErrTokenInvalid)
		return
	}
	if err := h.engine.Logout(r.Context(), raw); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *Handler) requestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.engine.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeErr(w, err)
		return
	}
	// Same answer whether or not the account exists.
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "if the address is registered, a reset link has been sent",
	})
}

func (h *Handler) confirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token           string `json:"token"`
		NewPassword     string `json:"new_password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		writeErr(w, fmt.Errorf("%w: passwords do not match", kimlik.ErrValidation))
		return
	}
	if err := h.engine.ConfirmPasswordReset(r.Context(), req.Token, req.NewPassword); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "password_updated"})
}

func (h *Handler) loginResponse(res *kimlik.LoginResult) map[string]any {
	return map[string]any{
		"access_token":  res.AccessToken,
		"refresh_token": res.RefreshToken,
		"token_type":    "Bearer",
		"expires_in":    h.expiresIn,
		"user":          res.User,
	}
}

func bearer(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
		return "", false
	}
	return auth[len(prefix):], true
}
