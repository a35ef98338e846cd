package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// TenantHeader carries the tenant scope for every API request.
// Authentication itself is handled upstream; by the time a request reaches
// this service the header is trusted.
const TenantHeader = "X-Tenant-ID"

type tenantKey struct{}

// RequireTenant extracts and validates the tenant ID header, rejecting
// requests without a well-formed tenant UUID.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(TenantHeader)
		if raw == "" {
			http.Error(w, "missing "+TenantHeader+" header", http.StatusBadRequest)
			return
		}

		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid "+TenantHeader+" header", http.StatusBadRequest)
			return
		}

		ctx := context.WithValue(r.Context(), tenantKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TenantID returns the tenant scope stored by RequireTenant.
func TenantID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(tenantKey{}).(uuid.UUID)
	return id, ok
}
