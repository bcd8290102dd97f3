package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"medai-auth/internal/domain"
	"medai-auth/internal/dto"
	"medai-auth/internal/netutil"
	"medai-auth/internal/observability/middleware"
	"medai-auth/internal/service"
	"medai-auth/internal/service/impl"
)

const maxBodyBytes = 1 << 20

// Error codes returned in the "error" field of every failure body.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeAlreadyRegistered  = "ALREADY_REGISTERED"
	CodeMailDispatchFailed = "MAIL_DISPATCH_FAILED"
	CodeInvalidCode        = "INVALID_CODE"
	CodeCodeExpired        = "CODE_EXPIRED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeEmailNotVerified   = "EMAIL_NOT_VERIFIED"
	CodeUserDisabled       = "USER_DISABLED"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeTooManyAttempts    = "TOO_MANY_ATTEMPTS"
	CodeNotFound           = "NOT_FOUND"
	CodeInternal           = "INTERNAL"
)

type errorBody struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
}

type handler struct {
	auth       service.AuthService
	trustProxy bool
}

func (h *handler) clientIP(r *http.Request) string {
	return netutil.ClientIP(r, h.trustProxy)
}

func (h *handler) signup(w http.ResponseWriter, r *http.Request) {
	var req dto.SignupRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.auth.Signup(r.Context(), req, h.clientIP(r), r.UserAgent())
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if !res.Created {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

func (h *handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyEmailRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.auth.VerifyEmail(r.Context(), req, h.clientIP(r), r.UserAgent())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) resendOTP(w http.ResponseWriter, r *http.Request) {
	var req dto.ResendOTPRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.auth.ResendOTP(r.Context(), req, h.clientIP(r), r.UserAgent())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.auth.Login(r.Context(), req, h.clientIP(r), r.UserAgent())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req dto.RefreshRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.auth.Refresh(r.Context(), req.RefreshToken, h.clientIP(r), r.UserAgent())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	var req dto.RefreshRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.auth.Logout(r.Context(), req.RefreshToken, h.clientIP(r), r.UserAgent()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, r, domain.ErrInvalidToken)
		return
	}
	user, err := h.auth.Me(r.Context(), token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: CodeValidation, Message: "request body must be valid JSON"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError is the single place errors become HTTP responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var rl *domain.RateLimitError
	switch {
	case impl.IsValidationError(err):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: CodeValidation, Message: err.Error()})
	case errors.As(err, &rl):
		writeRetryAfter(w, http.StatusTooManyRequests, CodeRateLimited,
			"Please wait before requesting another code.", rl.RetryAfterSeconds())
	case errors.Is(err, domain.ErrAlreadyRegistered):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: CodeAlreadyRegistered, Message: "An account with this email already exists."})
	case errors.Is(err, domain.ErrMailDispatch):
		logFailure(r, "verification email could not be sent", err)
		writeJSON(w, http.StatusBadGateway, errorBody{Error: CodeMailDispatchFailed, Message: "Could not send the verification email. Please request a new code shortly."})
	case errors.Is(err, domain.ErrInvalidCode):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: CodeInvalidCode, Message: "Invalid verification code."})
	case errors.Is(err, domain.ErrCodeExpired):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: CodeCodeExpired, Message: "Verification code has expired. Please request a new one."})
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: CodeInvalidCredentials, Message: "Invalid email or password."})
	case errors.Is(err, domain.ErrEmailNotVerified):
		writeJSON(w, http.StatusForbidden, errorBody{Error: CodeEmailNotVerified, Message: "Please verify your email before logging in."})
	case errors.Is(err, domain.ErrUserDisabled):
		writeJSON(w, http.StatusForbidden, errorBody{Error: CodeUserDisabled, Message: "This account has been disabled."})
	case errors.Is(err, domain.ErrInvalidToken):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: CodeInvalidToken, Message: "Invalid or expired token."})
	default:
		logFailure(r, "request failed", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: CodeInternal, Message: "Internal server error."})
	}
}

func writeRetryAfter(w http.ResponseWriter, status int, code, msg string, secs int) {
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeJSON(w, status, errorBody{Error: code, Message: msg, RetryAfterSeconds: secs})
}

// rejectTooManyAttempts is the limiter's response.
func rejectTooManyAttempts(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
	secs := (&domain.RateLimitError{RetryAfter: retryAfter}).RetryAfterSeconds()
	writeRetryAfter(w, http.StatusTooManyRequests, CodeTooManyAttempts,
		fmt.Sprintf("Too many attempts. Try again in %d seconds.", secs), secs)
}

func logFailure(r *http.Request, msg string, err error) {
	slog.Error(msg, append(middleware.LogAttrs(r.Context()), "path", r.URL.Path, "error", err)...)
}
