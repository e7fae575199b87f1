package fetcher

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mfenderov/browseflow/internal/pages"
	"github.com/mfenderov/browseflow/pkg/models"
)

func testServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		switch r.URL.Path {
		case "/html":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<html><head><title>Orders</title></head><body><h1>Order list</h1><p>Three open orders.</p></body></html>`))
		case "/doc.md":
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte("# Guide\n\n- step one\n"))
		case "/long":
			w.Header().Set("Content-Type", "text/markdown")
			w.Write([]byte(strings.Repeat("a", 50)))
		default:
			http.Error(w, "Internal Error", http.StatusInternalServerError)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFetch(t *testing.T) {
	server := testServer(t, nil)
	f := New(Config{Delay: 10 * time.Millisecond, UserAgent: "test-agent"})

	got := f.Fetch(t.Context(), []string{server.URL + "/html", server.URL + "/doc.md", server.URL + "/broken"})

	if len(got) != 2 {
		t.Fatalf("Fetch() returned %d pages, want 2: %+v", len(got), got)
	}
	page := got[server.URL+"/html"]
	if page.Title != "Orders" || !strings.Contains(page.Markdown, "# Order list") {
		t.Errorf("html page = %+v", page)
	}
	if md := got[server.URL+"/doc.md"].Markdown; md != "# Guide\n\n- step one" {
		t.Errorf("markdown page = %q", md)
	}
}

func TestFetchable(t *testing.T) {
	tests := []struct {
		name string
		page models.PageSession
		want bool
	}{
		{"missing content", models.PageSession{URL: "https://a.com/x", ContentSummary: pages.NoContent}, true},
		{"has content", models.PageSession{URL: "https://a.com/x", ContentSummary: "# x"}, false},
		{"unknown url", models.PageSession{URL: pages.UnknownURL, ContentSummary: pages.NoContent}, false},
		{"browser page", models.PageSession{URL: "chrome://newtab", ContentSummary: pages.NoContent}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Fetchable(tt.page); got != tt.want {
				t.Errorf("Fetchable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBackfill(t *testing.T) {
	var hits atomic.Int32
	server := testServer(t, &hits)
	f := New(Config{Delay: 10 * time.Millisecond, MaxContentLength: 10})

	sessions := []models.PageSession{
		{URL: server.URL + "/html", Title: pages.UnknownTitle, ContentSummary: pages.NoContent},
		{URL: server.URL + "/html", Title: "Kept", ContentSummary: pages.NoContent, TabID: models.IntPtr(2)},
		{URL: server.URL + "/long", Title: "Long", ContentSummary: pages.NoContent},
		{URL: server.URL + "/broken", Title: "Broken", ContentSummary: pages.NoContent},
		{URL: server.URL + "/doc.md", Title: "Captured", ContentSummary: "already here"},
	}

	out, filled := f.Backfill(t.Context(), sessions)

	if filled != 3 {
		t.Errorf("filled = %d, want 3", filled)
	}
	if hits.Load() != 3 {
		t.Errorf("server hits = %d, want 3 (duplicate URLs fetched once, captured pages skipped)", hits.Load())
	}
	if out[0].Title != "Orders" || out[1].Title != "Kept" {
		t.Errorf("titles = %q, %q", out[0].Title, out[1].Title)
	}
	if out[2].ContentSummary != strings.Repeat("a", 10)+"..." {
		t.Errorf("long summary = %q", out[2].ContentSummary)
	}
	if out[3].ContentSummary != pages.NoContent || out[4].ContentSummary != "already here" {
		t.Errorf("unchanged sessions modified: %+v", out[3:])
	}
	if sessions[0].ContentSummary != pages.NoContent {
		t.Error("Backfill() must not modify its input")
	}
}

func TestBackfill_NothingToFetch(t *testing.T) {
	f := New(Config{})
	out, filled := f.Backfill(t.Context(), []models.PageSession{{URL: "https://a.com", ContentSummary: "x"}})
	if filled != 0 || len(out) != 1 {
		t.Errorf("Backfill() = %d sessions, %d filled", len(out), filled)
	}
}
