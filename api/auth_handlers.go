package api

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"warptrace/util"
)

// loginBodyLimit caps the login request body size.
const loginBodyLimit int64 = 4096

// loginBlocked reports whether an IP has accumulated too many recent
// failed logins.
func (a *API) loginBlocked(ip string) bool {
	a.authFailuresMu.Lock()
	defer a.authFailuresMu.Unlock()
	entry, exists := a.authFailures[ip]
	return exists && entry.count >= 5 && time.Since(entry.lastFail) < 10*time.Minute
}

// recordLoginFailure increments the failure count for an IP.
func (a *API) recordLoginFailure(ip string) {
	a.authFailuresMu.Lock()
	defer a.authFailuresMu.Unlock()
	if entry, exists := a.authFailures[ip]; exists {
		entry.count++
		entry.lastFail = time.Now()
	} else {
		a.authFailures[ip] = &authFailureEntry{count: 1, lastFail: time.Now()}
	}
}

// clearLoginFailures resets the failure count for an IP after a
// successful login.
func (a *API) clearLoginFailures(ip string) {
	a.authFailuresMu.Lock()
	defer a.authFailuresMu.Unlock()
	delete(a.authFailures, ip)
}

// login godoc
//
//	@Summary		Authenticate
//	@Description	Authenticates with the configured credentials and returns a JWT
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			credentials	body		object{username=string,password=string}	true	"Login credentials"
//	@Success		200			{object}	map[string]string
//	@Failure		400			{object}	map[string]string
//	@Failure		401			{object}	map[string]string
//	@Failure		429			{object}	map[string]string
//	@Router			/api/login [post]
func (a *API) login(w http.ResponseWriter, r *http.Request) {
	if !a.config.Auth.Enabled {
		writeError(w, http.StatusNotImplemented, "authentication is disabled; set auth.enabled=true in config.yaml and restart", nil, a.logger)
		return
	}

	ip := getRealIP(r, a.config.API.TrustProxy, a.config.API.TrustedProxyNetworks)

	// Rate limit before touching credentials.
	if !a.loginLimiter.Allow(ip) {
		a.logger.Warnw("Login throttled", "source_ip", ip, "reason", "rate_limit")
		writeError(w, http.StatusTooManyRequests, "too many requests", nil, a.logger)
		return
	}

	if a.loginBlocked(ip) {
		a.logger.Warnw("Login throttled", "source_ip", ip, "reason", "repeated_failures")
		writeError(w, http.StatusTooManyRequests, "too many requests", nil, a.logger)
		return
	}

	var creds struct {
		Username string `json:"username" validate:"required,max=128"`
		Password string `json:"password" validate:"required,max=128"`
		TOTPCode string `json:"totp_code,omitempty"`
	}

	// decodeJSONBodyWithLimit writes the error response itself.
	if err := a.decodeJSONBodyWithLimit(w, r, &creds, loginBodyLimit); err != nil {
		return
	}

	validate := validator.New()
	if err := validate.Struct(creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid login credentials format", err, a.logger)
		return
	}

	if creds.Username != a.config.Auth.Username ||
		bcrypt.CompareHashAndPassword([]byte(a.config.Auth.HashedPassword), []byte(creds.Password)) != nil {
		a.recordLoginFailure(ip)
		// The submitted username is attacker input here; strip it before
		// it reaches a log line.
		a.logger.Infow("AUDIT: Login attempt failed",
			"action", "login",
			"outcome", "failure",
			"username", util.SanitizeString(creds.Username),
			"source_ip", ip,
			"reason", "invalid_credentials",
			"timestamp", time.Now().UTC())
		writeError(w, http.StatusUnauthorized, "invalid credentials", nil, a.logger)
		return
	}

	if a.config.Auth.TOTPSecret != "" {
		if creds.TOTPCode == "" {
			a.logger.Infow("AUDIT: Login attempt failed",
				"action", "login",
				"outcome", "failure",
				"username", creds.Username,
				"source_ip", ip,
				"reason", "mfa_required",
				"timestamp", time.Now().UTC())
			writeError(w, http.StatusUnauthorized, "MFA code required", nil, a.logger)
			return
		}
		if !totp.Validate(creds.TOTPCode, a.config.Auth.TOTPSecret) {
			a.recordLoginFailure(ip)
			a.logger.Infow("AUDIT: Login attempt failed",
				"action", "login",
				"outcome", "failure",
				"username", creds.Username,
				"source_ip", ip,
				"reason", "invalid_mfa_code",
				"timestamp", time.Now().UTC())
			writeError(w, http.StatusUnauthorized, "invalid credentials", nil, a.logger)
			return
		}
	}

	a.clearLoginFailures(ip)

	token, err := generateJWT(creds.Username, a.config)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate token", err, a.logger)
		return
	}

	a.logger.Infow("AUDIT: User login successful",
		"action", "login",
		"outcome", "success",
		"username", creds.Username,
		"source_ip", ip,
		"timestamp", time.Now().UTC())

	respondJSON(w, map[string]string{"token": token}, http.StatusOK, a.logger)
}
