package frontend

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStaticHandlerServesAssets(t *testing.T) {
	h := StaticHandler()

	for _, path := range []string{"/styles.css", "/feed.js"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s status=%d", path, rec.Code)
		}
		if rec.Header().Get("Cache-Control") == "" {
			t.Fatalf("GET %s missing Cache-Control", path)
		}
		if strings.TrimSpace(rec.Body.String()) == "" {
			t.Fatalf("GET %s returned an empty body", path)
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing.js", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown asset, got %d", rec.Code)
	}
}
