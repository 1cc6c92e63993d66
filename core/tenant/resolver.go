package tenant

import (
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/provisio/core/logger"
)

// Builder is a builder helper for the resolver middleware
type Builder struct {
	// Store is the tenant store used for timezone enrichment. Optional,
	// without it requests carry the resolved id only.
	Store Store
}

// NewMiddleware returns a middleware which resolves the tenant for every
// request and echoes the resolved id on the response.
func NewMiddleware(b *Builder) mux.MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := resolveID(r)
			t := Context{ID: id}

			if b.Store != nil {
				info, err := b.Store.FindByID(r.Context(), id)
				if err != nil {
					// enrichment is best effort, the request proceeds
					logger.FromContext(r.Context()).WithError(err).
						Debugf("tenant lookup failed for %s", id)
				} else if info != nil {
					t.Name = info.Name
					t.Timezone = info.Timezone
				}
			}

			w.Header().Set(HeaderTenantID, id)
			h.ServeHTTP(w, r.WithContext(ContextWithTenant(r.Context(), t)))
		})
	}
}

// resolveID applies the resolution precedence, first match wins.
func resolveID(r *http.Request) string {
	if sub := subdomain(r.Host); sub != "" {
		return sub
	}
	if header := r.Header.Get(HeaderTenantID); header != "" {
		return header
	}
	if query := r.URL.Query().Get("tenantId"); query != "" {
		return query
	}
	return DefaultTenantID
}

// subdomain extracts the first host label when the host has at least three
// labels, so plain domains like example.com never resolve to a tenant. IP
// addresses have no subdomain, their octets must not shadow the tenant
// header. The literals "www" and "api" are not tenants.
func subdomain(hostport string) string {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	if net.ParseIP(host) != nil {
		return ""
	}
	labels := strings.Split(host, ".")
	if len(labels) < 3 {
		return ""
	}
	sub := strings.ToLower(labels[0])
	if sub == "" || sub == "www" || sub == "api" {
		return ""
	}
	return sub
}
