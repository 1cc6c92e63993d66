/*Package access provides utilities for access control
 */
package access

import (
	"context"
	"sync"
)

// contextKey is the type for context keys. Go linter does not like plain strings
type contextKey string

const (
	contextKeyAuthorization contextKey = "_authorization_"
)

/*Authorization is a context object which stores the authenticated caller.

It is added to a request context with

	ctx = auth.ContextWithAuthorization(ctx)

and retrieved with

	auth := AuthorizationFromContext(ctx)

Authorization objects are added to the context by the JWT bearer middleware,
see NewJwtMiddleware. Handlers use the object for downstream authorization
decisions.
*/
type Authorization struct {
	UserID string   `json:"userId"`
	Email  string   `json:"email"`
	Roles  []string `json:"roles"`
}

// HasRole returns true if the authorization contains the requested role;
// otherwise it returns false.
func (a *Authorization) HasRole(role string) bool {
	if a == nil {
		return false
	}
	for _, hasRole := range a.Roles {
		if role == hasRole {
			return true
		}
	}
	return false
}

// ContextWithAuthorization returns a new context with this authorization added to it
func (a *Authorization) ContextWithAuthorization(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKeyAuthorization, a)
}

// AuthorizationFromContext retrieves an authorization from the context
func AuthorizationFromContext(ctx context.Context) *Authorization {
	a, ok := ctx.Value(contextKeyAuthorization).(*Authorization)
	if ok {
		return a
	}
	return nil
}

// AuthorizationCache is an in-memory cache for authorizations, keyed by the
// bearer token they were derived from. It saves repeated claim parsing for
// chatty clients.
type AuthorizationCache struct {
	mutex sync.RWMutex
	cache map[string]*Authorization
}

// NewAuthorizationCache creates a new authorization cache
func NewAuthorizationCache() *AuthorizationCache {
	return &AuthorizationCache{cache: make(map[string]*Authorization)}
}

// Read returns an authorization from in-process cache.
// This function is go-routine safe
func (a *AuthorizationCache) Read(token string) *Authorization {
	a.mutex.RLock()
	auth, ok := a.cache[token]
	a.mutex.RUnlock()
	if ok {
		return auth
	}
	return nil
}

// Write stores an authorization in the in-memory cache.
// This function is go-routine safe
func (a *AuthorizationCache) Write(token string, auth *Authorization) {
	a.mutex.Lock()
	a.cache[token] = auth
	a.mutex.Unlock()
}
