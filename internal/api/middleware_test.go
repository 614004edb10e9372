package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/heimdex/heimdex-render/internal/logging"
	"github.com/heimdex/heimdex-render/internal/store"
)

func TestIsAllowedOrigin(t *testing.T) {
	origins := map[string]bool{
		"http://localhost:3000":              true,
		"http://127.0.0.1:5173":              true,
		"https://studio.app.heimdex.co":      true,
		"http://edit-2.app.heimdex.local":    true,
		"":                                   false,
		"null":                               false,
		"https://app.heimdex.co":             false,
		"https://a.b.app.heimdex.co":         false,
		"https://-edit.app.heimdex.co":       false,
		"https://studio.app.heimdex.co.evil": false,
		"https://evilapp.heimdex.co":         false,
		"ftp://localhost":                    false,
		"http://localhost/exports":           false,
		"http://user@localhost":              false,
		"http://localhost:port":              false,
	}
	for origin, want := range origins {
		if got := isAllowedOrigin(origin); got != want {
			t.Errorf("isAllowedOrigin(%q) = %v, want %v", origin, got, want)
		}
	}
}

func TestIsLoopbackRemoteAddr(t *testing.T) {
	addrs := map[string]bool{
		"127.0.0.1:50123":    true,
		"127.8.0.1:80":       true,
		"[::1]:8787":         true,
		"::1":                true,
		"192.168.1.40:51234": false,
		"[fe80::1]:8787":     false,
		"localhost:8787":     false,
		"":                   false,
	}
	for addr, want := range addrs {
		if got := isLoopbackRemoteAddr(addr); got != want {
			t.Errorf("isLoopbackRemoteAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}

func TestCORSAllowlist_Routes(t *testing.T) {
	jobsFake := newFakeJobs()
	jobsFake.add(&store.Job{ID: "job-1", Status: store.JobStatusRunning})
	router := NewRouter(testConfig(jobsFake))

	const studio = "https://studio.app.heimdex.co"

	tests := []struct {
		name       string
		method     string
		path       string
		origin     string
		authed     bool
		wantStatus int
		wantCORS   bool
	}{
		{"presets from studio", http.MethodGet, "/presets", studio, true, http.StatusOK, true},
		{"presets from unknown site", http.MethodGet, "/presets", "https://evil.example", true, http.StatusOK, false},
		{"exports without origin", http.MethodGet, "/exports", "", true, http.StatusOK, false},
		{"unauthorized still readable", http.MethodGet, "/exports", studio, false, http.StatusUnauthorized, true},
		{"preflight submit", http.MethodOptions, "/exports", studio, false, http.StatusNoContent, true},
		{"preflight cancel", http.MethodOptions, "/exports/job-1", "http://localhost:3000", false, http.StatusNoContent, true},
		{"preflight from unknown site", http.MethodOptions, "/exports", "https://evil.example", false, http.StatusForbidden, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.authed {
				req.Header.Set("Authorization", "Bearer "+testToken)
			}
			if tt.method == http.MethodOptions {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			acao := rr.Header().Get("Access-Control-Allow-Origin")
			if !tt.wantCORS {
				if acao != "" {
					t.Errorf("Access-Control-Allow-Origin = %q, want none", acao)
				}
				return
			}
			if acao != tt.origin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", acao, tt.origin)
			}
			if !slices.Contains(rr.Header().Values("Vary"), "Origin") {
				t.Errorf("Vary = %v, want Origin", rr.Header().Values("Vary"))
			}
		})
	}
}

func TestCORSAllowlist_PreflightAdvertisesExportMethods(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/exports/job-1", nil)
	req.Header.Set("Origin", "http://127.0.0.1:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	req.Header.Set("Access-Control-Request-Headers", "authorization, range")
	rr := httptest.NewRecorder()

	NewRouter(testConfig(newFakeJobs())).ServeHTTP(rr, req)

	h := rr.Header()
	for _, m := range []string{"POST", "DELETE", "HEAD"} {
		if !strings.Contains(h.Get("Access-Control-Allow-Methods"), m) {
			t.Errorf("Allow-Methods %q missing %s", h.Get("Access-Control-Allow-Methods"), m)
		}
	}
	for _, name := range []string{"Authorization", "Range"} {
		if !strings.Contains(h.Get("Access-Control-Allow-Headers"), name) {
			t.Errorf("Allow-Headers %q missing %s", h.Get("Access-Control-Allow-Headers"), name)
		}
	}
	if !strings.Contains(h.Get("Access-Control-Expose-Headers"), "Content-Disposition") {
		t.Errorf("Expose-Headers %q should expose the download name", h.Get("Access-Control-Expose-Headers"))
	}
	if h.Get("Access-Control-Max-Age") != "600" {
		t.Errorf("Max-Age = %q, want 600", h.Get("Access-Control-Max-Age"))
	}
}

func TestCORSAllowlist_KeepsExistingVary(t *testing.T) {
	handler := CORSAllowlist()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/presets", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	rr.Header().Set("Vary", "Accept-Encoding")

	handler.ServeHTTP(rr, req)

	if got := rr.Header().Values("Vary"); !slices.Equal(got, []string{"Accept-Encoding", "Origin"}) {
		t.Errorf("Vary = %v", got)
	}
}

func TestExportFileRoute_LoopbackOnly(t *testing.T) {
	tests := []struct {
		remote     string
		wantStatus int
	}{
		{"127.0.0.1:50123", http.StatusOK},
		{"[::1]:50123", http.StatusOK},
		{"192.168.1.40:51234", http.StatusForbidden},
		{"[2001:db8::7]:443", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			fj := newFakeJobs()
			fj.add(&store.Job{ID: "job-1", Status: store.JobStatusCompleted, OutputPath: "/tmp/out.mp4"})
			playback := &fakePlayback{}
			cfg := testConfig(fj)
			cfg.PlaybackServer = playback

			rr := httptest.NewRecorder()
			req := fileRequest()
			req.RemoteAddr = tt.remote
			NewRouter(cfg).ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			served := playback.served == "/tmp/out.mp4"
			if served != (tt.wantStatus == http.StatusOK) {
				t.Errorf("served = %q for remote %s", playback.served, tt.remote)
			}
		})
	}
}

func TestExportFileRoute_HeadOverLoopbackServer(t *testing.T) {
	fj := newFakeJobs()
	fj.add(&store.Job{ID: "job-1", Status: store.JobStatusCompleted, OutputPath: "/tmp/out.mp4"})
	cfg := testConfig(fj)
	cfg.PlaybackServer = &fakePlayback{}

	server := httptest.NewServer(NewRouter(cfg))
	defer server.Close()

	req, _ := http.NewRequest(http.MethodHead, server.URL+"/exports/job-1/file", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if body, _ := io.ReadAll(resp.Body); len(body) != 0 {
		t.Errorf("HEAD body length = %d, want 0", len(body))
	}
}

func TestExportFileRoute_NotReady(t *testing.T) {
	fj := newFakeJobs()
	fj.add(&store.Job{ID: "job-1", Status: store.JobStatusRunning})
	cfg := testConfig(fj)
	cfg.PlaybackServer = &fakePlayback{}

	rr := httptest.NewRecorder()
	req := fileRequest()
	req.RemoteAddr = "127.0.0.1:50123"
	NewRouter(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusConflict)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value(RequestIDKey).(string)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/exports", nil))

	if len(seen) != 8 {
		t.Fatalf("request id = %q, want 8 chars", seen)
	}
	if rr.Header().Get("X-Request-ID") != seen {
		t.Errorf("X-Request-ID = %q, want %q", rr.Header().Get("X-Request-ID"), seen)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(logging.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("compose exploded")
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/exports", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusInternalServerError)
	}
	if code, _ := decodeJSONBody(t, rr)["code"].(string); code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want INTERNAL_ERROR", code)
	}
}

func fileRequest() *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/exports/job-1/file", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	return req
}

type fakePlayback struct {
	served string
}

func (f *fakePlayback) ServeFile(w http.ResponseWriter, r *http.Request, path string) error {
	f.served = path
	w.Header().Set("Accept-Ranges", "bytes")
	w.WriteHeader(http.StatusOK)
	return nil
}
