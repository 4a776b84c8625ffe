package kit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsAuth(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	cases := []struct {
		name, token, header string
		want                int
	}{
		{"open when no token", "", "", http.StatusOK},
		{"missing header", "t0k", "", http.StatusForbidden},
		{"wrong token", "t0k", "Bearer nope", http.StatusForbidden},
		{"wrong scheme", "t0k", "Basic t0k", http.StatusForbidden},
		{"match", "t0k", "Bearer t0k", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			MetricsAuth(tc.token)(ok).ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}
