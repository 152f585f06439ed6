package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kimlik-auth/kimlik"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: publicMessage(err, status)}})
}

// statusFor maps engine sentinels onto HTTP semantics. Anything unmapped is
// an internal failure and stays opaque.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, kimlik.ErrValidation):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, kimlik.ErrPasswordPolicy):
		return http.StatusBadRequest, "PASSWORD_POLICY"
	case errors.Is(err, kimlik.ErrResetTokenInvalid):
		return http.StatusBadRequest, "RESET_TOKEN_INVALID"
	case errors.Is(err, kimlik.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS"
	case errors.Is(err, kimlik.ErrTwoFactorInvalid):
		return http.StatusUnauthorized, "TWO_FACTOR_INVALID"
	case errors.Is(err, kimlik.ErrTokenExpired):
		return http.StatusUnauthorized, "TOKEN_EXPIRED"
	case errors.Is(err, kimlik.ErrTokenRevoked):
		return http.StatusUnauthorized, "TOKEN_REVOKED"
	case errors.Is(err, kimlik.ErrTokenInvalid):
		return http.StatusUnauthorized, "TOKEN_INVALID"
	case errors.Is(err, kimlik.ErrAccountLocked):
		return http.StatusForbidden, "ACCOUNT_LOCKED"
	case errors.Is(err, kimlik.ErrAccountSuspended):
		return http.StatusForbidden, "ACCOUNT_SUSPENDED"
	case errors.Is(err, kimlik.ErrEmailExists):
		return http.StatusConflict, "EMAIL_EXISTS"
	case errors.Is(err, kimlik.ErrEmailNotFound):
		return http.StatusNotFound, "EMAIL_NOT_FOUND"
	case errors.Is(err, kimlik.ErrAlreadyVerified):
		return http.StatusConflict, "ALREADY_VERIFIED"
	case errors.Is(err, kimlik.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED"
	case errors.Is(err, kimlik.ErrCacheUnavailable):
		return http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// publicMessage hides internal detail on 5xx; client errors carry the
// sentinel text, which is written for end users.
func publicMessage(err error, status int) string {
	if status >= http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}
