// Package middleware contains HTTP middleware for the controller.
package middleware

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"projectplane/internal/model"
	"projectplane/internal/store"
)

// principalKey is the context key for the acting user.
type principalKey struct{}

// AdminLatch caches, per tenant, whether an admin user exists. The check
// runs on every unauthenticated bootstrap attempt until the first admin
// appears; after that the cached flag short-circuits it. Invalidate resets
// a tenant after user mutations so the latch never serves a stale "no
// admins" answer.
type AdminLatch struct {
	users store.UserStore
	flags sync.Map // tenant -> *atomic.Bool
}

// NewAdminLatch creates a latch over the given user store.
func NewAdminLatch(users store.UserStore) *AdminLatch {
	return &AdminLatch{users: users}
}

func (l *AdminLatch) flag(tenant string) *atomic.Bool {
	v, _ := l.flags.LoadOrStore(tenant, &atomic.Bool{})
	return v.(*atomic.Bool)
}

// AdminsExist reports whether the tenant has at least one admin. Lookup
// errors count as yes so the bootstrap path fails closed.
func (l *AdminLatch) AdminsExist(ctx context.Context, tenant string) bool {
	flag := l.flag(tenant)
	if flag.Load() {
		return true
	}

	admins, err := l.users.ListAdmins(ctx, tenant)
	if err != nil {
		return true
	}
	if len(admins) > 0 {
		flag.Store(true)
		return true
	}
	return false
}

// Invalidate clears the cached flag for a tenant.
func (l *AdminLatch) Invalidate(tenant string) {
	l.flag(tenant).Store(false)
}

// Principal resolves the acting user from the request headers. Unknown
// users are rejected, with one exception: while a tenant has no admin at
// all, an unknown caller passes through as a bootstrap principal so the
// first admin can be created.
func Principal(users store.UserStore, latch *AdminLatch) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			tenant := r.Header.Get("X-Tenant-ID")
			if tenant == "" {
				http.Error(w, "missing tenant", http.StatusUnauthorized)
				return
			}

			userID, err := uuid.Parse(r.Header.Get("X-User-ID"))
			if err != nil {
				http.Error(w, "missing or invalid user id", http.StatusUnauthorized)
				return
			}

			user, err := users.GetUser(ctx, userID)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				if latch.AdminsExist(ctx, tenant) {
					http.Error(w, "unknown user", http.StatusUnauthorized)
					return
				}
				user = &model.User{ID: userID, Tenant: tenant}
			case err != nil:
				http.Error(w, "user lookup failed", http.StatusInternalServerError)
				return
			case user.Tenant != tenant:
				http.Error(w, "unknown user", http.StatusUnauthorized)
				return
			}

			ctx = context.WithValue(ctx, principalKey{}, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromContext extracts the acting user from the context.
func PrincipalFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(principalKey{}).(*model.User)
	return user, ok
}
