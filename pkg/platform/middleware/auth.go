package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "proofpals/pkg/domain-errors"
	"proofpals/pkg/platform/httputil"
	"proofpals/pkg/requestcontext"
)

// Roles carried in token claims.
const (
	RoleReviewer = "reviewer"
	RoleAdmin    = "admin"
)

const adminTokenHeader = "X-Admin-Token"

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Auth validates bearer tokens and enforces per-route roles.
type Auth struct {
	signingKey []byte
	adminToken string
}

// NewAuth builds the authenticator. adminToken may be empty, which
// disables the static admin header entirely.
func NewAuth(signingKey []byte, adminToken string) *Auth {
	return &Auth{signingKey: signingKey, adminToken: adminToken}
}

// MintToken issues an HS256 token for the given subject and role. Used by
// the enrollment path and by tests.
func (a *Auth) MintToken(subject, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(a.signingKey)
}

func (a *Auth) parse(r *http.Request) (subject, role string, err error) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return "", "", dErrors.New(dErrors.CodeForbidden, "missing bearer token")
	}
	var c claims
	_, err = jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return a.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", "", dErrors.New(dErrors.CodeForbidden, "invalid token")
	}
	return c.Subject, c.Role, nil
}

// RequireRole admits only callers holding the given role. Admins pass
// every gate; the static admin token, when configured, is an admin.
func (a *Auth) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a.adminToken != "" {
				supplied := r.Header.Get(adminTokenHeader)
				if supplied != "" && subtle.ConstantTimeCompare([]byte(supplied), []byte(a.adminToken)) == 1 {
					ctx := requestcontext.WithActor(r.Context(), "admin-token", RoleAdmin)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			subject, actorRole, err := a.parse(r)
			if err != nil {
				httputil.WriteError(w, nil, err)
				return
			}
			if actorRole != role && actorRole != RoleAdmin {
				httputil.WriteError(w, nil, dErrors.New(dErrors.CodeForbidden, "insufficient role"))
				return
			}
			ctx := requestcontext.WithActor(r.Context(), subject, actorRole)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
