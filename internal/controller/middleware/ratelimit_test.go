package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"projectplane/internal/model"
)

func limitedRequest(user *model.User) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/projects", nil)
	ctx := context.WithValue(r.Context(), principalKey{}, user)
	return r.WithContext(ctx)
}

func TestRateLimit_ThrottlesPerUser(t *testing.T) {
	handler := RateLimit(1, 2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	user := &model.User{ID: uuid.New(), Tenant: "contoso"}

	codes := make([]int, 3)
	for i := range codes {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, limitedRequest(user))
		codes[i] = rec.Code
	}

	if codes[0] != http.StatusAccepted || codes[1] != http.StatusAccepted {
		t.Errorf("burst requests throttled: %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("third request not throttled: %v", codes)
	}

	// A different user has their own budget.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, limitedRequest(&model.User{ID: uuid.New(), Tenant: "contoso"}))
	if rec.Code != http.StatusAccepted {
		t.Errorf("unrelated user throttled: %d", rec.Code)
	}
}

func TestRateLimit_ZeroRateMeansUnlimited(t *testing.T) {
	handler := RateLimit(0, 0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	user := &model.User{ID: uuid.New(), Tenant: "contoso"}
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, limitedRequest(user))
		if rec.Code != http.StatusAccepted {
			t.Fatalf("request %d throttled with unlimited rate", i)
		}
	}
}

func TestRequireInternalAuth(t *testing.T) {
	handler := RequireInternalAuth("s3cret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer s3cret", http.StatusNoContent},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"malformed header", "s3cret", http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/internal/tenants", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, r)
			if rec.Code != tc.want {
				t.Errorf("got %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
