package access

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/provisio/core/logger"
)

// JwtMiddlewareBuilder is a helper builder for the JWT middleware
type JwtMiddlewareBuilder struct {
	// Secret is the HMAC key used to verify token signatures. This is mandatory.
	Secret []byte
	// Issuer is the accepted issuer for the token. Optional, when empty any
	// issuer is accepted.
	Issuer string
	// PublicPaths are exact request paths which bypass token verification
	// entirely, such as health endpoints and the device bootstrap endpoint.
	PublicPaths []string
}

type jwtClaims struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// NewJwtMiddleware returns a middleware handler to validate JWT bearer token.
//
// Tokens are accepted as "Authorization: Bearer" header. Requests to one of
// the public paths pass through untouched. All other requests need a valid
// token: a missing token, a bad signature or an expired token all result in
// 401 with a WWW-Authenticate challenge.
//
// The claims of a valid token populate an access.Authorization with user id,
// email and roles, for downstream authorization decisions.
func NewJwtMiddleware(b *JwtMiddlewareBuilder) mux.MiddlewareFunc {

	if len(b.Secret) == 0 {
		panic("JWT secret is missing")
	}

	public := make(map[string]bool, len(b.PublicPaths))
	for _, path := range b.PublicPaths {
		public[path] = true
	}

	keyFunc := func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return b.Secret, nil
	}

	authCache := NewAuthorizationCache()

	unauthorized := func(w http.ResponseWriter) {
		w.Header().Set("WWW-Authenticate", "Bearer")
		http.Error(w, "invalid token", http.StatusUnauthorized)
	}

	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public[r.URL.Path] {
				h.ServeHTTP(w, r)
				return
			}

			if auth := AuthorizationFromContext(r.Context()); auth != nil { // already authorized?
				h.ServeHTTP(w, r)
				return
			}

			tokenString := ""
			bearer := r.Header.Get("Authorization")
			if len(bearer) >= 8 && strings.ToLower(bearer[:7]) == "bearer " {
				tokenString = bearer[7:]
			}
			if len(tokenString) == 0 {
				unauthorized(w)
				return
			}

			auth := authCache.Read(tokenString)
			if auth == nil {
				claims := jwtClaims{}
				token, err := jwt.ParseWithClaims(tokenString, &claims, keyFunc)
				if err != nil || !token.Valid {
					unauthorized(w)
					return
				}
				if len(b.Issuer) > 0 && claims.Issuer != b.Issuer {
					unauthorized(w)
					return
				}
				auth = &Authorization{
					UserID: claims.Subject,
					Email:  claims.Email,
					Roles:  claims.Roles,
				}
				authCache.Write(tokenString, auth)
			}

			ctx := auth.ContextWithAuthorization(r.Context())
			ctx, _ = logger.ContextWithLoggerIdentity(ctx, auth.UserID)
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
