/*Package tenant derives the tenant context for every request

Resolution precedence, first match wins: the subdomain of the Host header
(excluding the literals "www" and "api"), the X-Tenant-ID header, the tenantId
query parameter, and finally the literal fallback "default". The resolved id
is echoed on every response via X-Tenant-ID.

After resolution the middleware tries to enrich the context with the tenant's
persisted timezone. A failing lookup is swallowed, the request proceeds
without a timezone.
*/
package tenant

import (
	"context"
)

// DefaultTenantID is the literal fallback when nothing else resolves.
const DefaultTenantID = "default"

// HeaderTenantID is consumed for resolution and produced on every response.
const HeaderTenantID = "X-Tenant-ID"

// Context is the resolved tenant for one request. It is resolved once and
// read-only afterwards.
type Context struct {
	ID       string
	Name     string
	Timezone string
}

type contextKeyTenantType struct{}

var contextKeyTenant = &contextKeyTenantType{}

// ContextWithTenant returns a new context with the tenant added to it.
func ContextWithTenant(ctx context.Context, t Context) context.Context {
	return context.WithValue(ctx, contextKeyTenant, t)
}

// FromContext retrieves the tenant from the context. If the request never
// went through the resolver middleware, the default tenant is returned.
func FromContext(ctx context.Context) Context {
	t, ok := ctx.Value(contextKeyTenant).(Context)
	if !ok {
		return Context{ID: DefaultTenantID}
	}
	return t
}
