// Package handler exposes the authentication service over HTTP. Handlers
// decode requests, call the service layer, and translate results into the
// JSON envelope or a redirect; no business rules live here.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"

	"github.com/justanagent/auth-service/internal/auth"
	"github.com/justanagent/auth-service/internal/service"
)

const stateCookieName = "oauth_state"

// AuthHandler serves the local credential flows and the OAuth login flows.
type AuthHandler struct {
	svc        *service.AuthService
	providers  map[string]auth.Provider
	frontend   string
	production bool
	logger     *slog.Logger
}

// NewAuthHandler creates an AuthHandler. providers maps the URL segment
// ("google", "github") to the configured provider; unconfigured providers
// are simply absent.
func NewAuthHandler(
	svc *service.AuthService,
	providers map[string]auth.Provider,
	frontendURL string,
	production bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		svc:        svc,
		providers:  providers,
		frontend:   frontendURL,
		production: production,
		logger:     logger,
	}
}

// decode reads a JSON body into dst. Unknown fields are ignored.
func decode(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, envelope{Message: message})
}

// setSessionCookie stores the JWT in an HttpOnly cookie. SameSite=Strict
// keeps it off cross-site requests; Secure requires HTTPS, production only.
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   auth.SessionMaxAge(),
		HttpOnly: true,
		Secure:   h.production,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.production,
		SameSite: http.SameSiteStrictMode,
	})
}

// HandleRegister starts a local registration.
//
// POST /auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email      string `json:"email"`
		Name       string `json:"name"`
		Password   string `json:"password"`
		Profession string `json:"profession"`
	}
	if err := decode(r, &req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	user, err := h.svc.Register(r.Context(), service.RegisterInput{
		Email:      req.Email,
		Name:       req.Name,
		Password:   req.Password,
		Profession: req.Profession,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated,
		"Registration successful. Please check your email for the verification code.",
		map[string]any{
			"requiresVerification": true,
			"email":                user.Email,
		})
}

// HandleVerifyOTP completes a registration and signs the user in.
//
// POST /auth/verify-otp
func (h *AuthHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}
	if err := decode(r, &req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	result, err := h.svc.VerifyOTP(r.Context(), req.Email, req.OTP)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setSessionCookie(w, result.Token)
	writeSuccess(w, http.StatusOK, "Email verified successfully", map[string]any{
		"user":  result.User,
		"token": result.Token,
	})
}

// HandleResendOTP issues a fresh verification code for a pending account.
//
// POST /auth/resend-otp
func (h *AuthHandler) HandleResendOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decode(r, &req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	if err := h.svc.ResendOTP(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Verification code sent", nil)
}

// HandleLogin authenticates email+password and issues a session.
//
// POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decode(r, &req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	result, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setSessionCookie(w, result.Token)
	writeSuccess(w, http.StatusOK, "Login successful", map[string]any{
		"user":  result.User,
		"token": result.Token,
	})
}

// HandleLogout clears the session cookie. Stateless: the token stays valid
// until its expiry, the browser just stops sending it.
//
// POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.clearSessionCookie(w)
	writeSuccess(w, http.StatusOK, "Logged out successfully", nil)
}

// HandleProfile returns the authenticated user's record.
//
// GET /auth/profile (behind RequireAuth)
func (h *AuthHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, envelope{Message: "Not authenticated"})
		return
	}

	user, err := h.svc.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "", map[string]any{"user": user})
}

// HandleForgotPassword starts a password reset. The response is identical
// whether or not the email exists.
//
// POST /auth/forgot-password
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decode(r, &req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}
	if req.Email == "" {
		badRequest(w, "Email is required")
		return
	}

	if err := h.svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK,
		"If an account with that email exists, a password reset link has been sent.", nil)
}

// HandleResetPassword redeems a reset token and sets a new password.
//
// POST /auth/reset-password
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decode(r, &req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	if err := h.svc.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Password has been reset successfully", nil)
}

// HandleVerifyResetToken probes a reset token without consuming it, so the
// frontend can show the form only for live tokens.
//
// GET /auth/verify-reset-token/{token}
func (h *AuthHandler) HandleVerifyResetToken(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	user, err := h.svc.VerifyResetToken(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Token is valid", map[string]any{
		"email": user.Email,
		"name":  user.Name,
	})
}

// HandleOAuthStart redirects the browser to the provider's authorization
// page. A random state value goes into a short-lived cookie; the callback
// rejects any response that doesn't echo it back.
//
// GET /auth/{provider}
func (h *AuthHandler) HandleOAuthStart(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.providers[chi.URLParam(r, "provider")]
	if !ok {
		writeJSON(w, http.StatusNotFound, envelope{Message: "Unknown authentication provider"})
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.production,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, provider.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleOAuthCallback completes a provider login: state check, code
// exchange, account resolution, session cookie, then a redirect into the
// frontend. Failures redirect to the frontend error page rather than
// rendering JSON, because the browser is mid-navigation.
//
// GET /auth/{provider}/callback
func (h *AuthHandler) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	provider, ok := h.providers[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, envelope{Message: "Unknown authentication provider"})
		return
	}

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" ||
		r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("oauth callback: state mismatch", slog.String("provider", name))
		h.redirectError(w, r, "invalid_state")
		return
	}

	// single-use
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("oauth callback: provider returned error",
			slog.String("provider", name),
			slog.String("error", errParam),
		)
		h.redirectError(w, r, errParam)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		h.redirectError(w, r, "missing_code")
		return
	}

	profile, err := provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("oauth callback: exchange failed",
			slog.String("provider", name),
			slog.String("error", err.Error()),
		)
		h.redirectError(w, r, "exchange_failed")
		return
	}

	result, err := h.svc.LoginOAuth(r.Context(), profile)
	if err != nil {
		h.logger.Error("oauth callback: login failed",
			slog.String("provider", name),
			slog.String("error", err.Error()),
		)
		h.redirectError(w, r, "login_failed")
		return
	}

	h.setSessionCookie(w, result.Token)

	dest := h.frontend + "/home"
	if result.IsNewUser {
		dest = h.frontend + "/welcome"
	}
	http.Redirect(w, r, dest, http.StatusSeeOther)
}

func (h *AuthHandler) redirectError(w http.ResponseWriter, r *http.Request, reason string) {
	http.Redirect(w, r,
		h.frontend+"/auth/error?reason="+url.QueryEscape(reason),
		http.StatusSeeOther)
}
