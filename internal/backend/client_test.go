package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"imgmigrate/internal/apperr"
	"imgmigrate/internal/models"
)

type staticSettings struct {
	cfg models.BackendConfig
	err error
}

func (s staticSettings) Backend(context.Context) (models.BackendConfig, error) {
	return s.cfg, s.err
}

func testClient(baseURL, apiKey string, env models.Environment) *Client {
	return NewClient(staticSettings{cfg: models.BackendConfig{BaseURL: baseURL, APIKey: apiKey, Environment: env}}, Options{})
}

func writeAsset(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "img-migrate-1")
	if err := os.WriteFile(path, []byte("image-bytes"), 0o644); err != nil {
		t.Fatalf("write asset: %v", err)
	}
	return path
}

func TestNormalizeBaseURL(t *testing.T) {
	tests := map[string]string{
		"":                          "",
		"   ":                       "",
		"https://snap.test/":        "https://snap.test",
		" https://snap.test/api// ": "https://snap.test/api",
		"https://snap.test":         "https://snap.test",
	}
	for in, want := range tests {
		if got := NormalizeBaseURL(in); got != want {
			t.Fatalf("NormalizeBaseURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestConfigured(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		reader   SettingsReader
		want     bool
		wantKind apperr.Kind
	}{
		{name: "complete", reader: staticSettings{cfg: models.BackendConfig{BaseURL: "https://snap.test/", APIKey: "k"}}, want: true},
		{name: "missing key", reader: staticSettings{cfg: models.BackendConfig{BaseURL: "https://snap.test"}}, wantKind: apperr.KindConfig},
		{name: "blank url", reader: staticSettings{cfg: models.BackendConfig{BaseURL: " / ", APIKey: "k"}}, wantKind: apperr.KindConfig},
		{name: "reader error", reader: staticSettings{err: errors.New("boom")}, wantKind: apperr.KindSettings},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := NewClient(tc.reader, Options{})
			if got := c.IsConfigured(ctx); got != tc.want {
				t.Fatalf("IsConfigured = %v, want %v", got, tc.want)
			}
			err := c.EnsureConfigured(ctx)
			if tc.want && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.want && !apperr.IsKind(err, tc.wantKind) {
				t.Fatalf("expected %s error, got %v", tc.wantKind, err)
			}
		})
	}
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr bool
	}{
		{name: "ok", status: http.StatusOK, body: `{"status":"ok"}`},
		{name: "degraded", status: http.StatusOK, body: `{"status":"degraded"}`, wantErr: true},
		{name: "not json", status: http.StatusOK, body: `ok`, wantErr: true},
		{name: "server error", status: http.StatusServiceUnavailable, body: `{"status":"ok"}`, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health" || r.Method != http.MethodGet {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			err := testClient(srv.URL+"/", "key", "").HealthCheck(context.Background(), "")
			if tc.wantErr {
				if !apperr.IsKind(err, apperr.KindHealthCheck) {
					t.Fatalf("expected health_check error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestHealthCheckOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	}))
	defer srv.Close()

	c := testClient("", "", "")
	if err := c.HealthCheck(context.Background(), ""); !apperr.IsKind(err, apperr.KindHealthCheck) {
		t.Fatalf("expected health_check error without base URL, got %v", err)
	}
	if err := c.HealthCheck(context.Background(), " "+srv.URL+"/ "); err != nil {
		t.Fatalf("override health check: %v", err)
	}
}

func TestUploadSendsMultipartForm(t *testing.T) {
	options := models.UploadOptions{
		ScaleFactor: 1.01,
		Quality:     map[string]int{"webp": 75, "avif": 50},
		Effort:      map[string]int{"webp": 6, "avif": 8},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/upload" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("x-snapgrab-key"); got != "secret" {
			t.Errorf("expected api key header, got %q", got)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("expected json accept, got %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		want := map[string]string{
			"sourceUrl": "https://forum.test/d/7/3",
			"targetEnv": "integration",
			"format":    "webp",
		}
		for k, v := range want {
			if got := r.FormValue(k); got != v {
				t.Errorf("field %s = %q, want %q", k, got, v)
			}
		}
		var gotOptions models.UploadOptions
		if err := json.Unmarshal([]byte(r.FormValue("options")), &gotOptions); err != nil {
			t.Errorf("decode options: %v", err)
		}
		if gotOptions.ScaleFactor != 1.01 || gotOptions.Quality["avif"] != 50 || gotOptions.Effort["webp"] != 6 || gotOptions.Lossless {
			t.Errorf("unexpected options %+v", gotOptions)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			data, _ := io.ReadAll(file)
			if string(data) != "image-bytes" || header.Filename != "img-migrate-1" {
				t.Errorf("unexpected file %q named %q", data, header.Filename)
			}
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"url":"https://cdn.test/a.webp","key":"abc","originalUrl":"https://ext.test/a.png","size":12}`)
	}))
	defer srv.Close()

	c := testClient(srv.URL, "secret", models.EnvironmentIntegration)
	res, err := c.Upload(context.Background(), writeAsset(t), "https://forum.test/d/7/3", "webp", options)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.URL != "https://cdn.test/a.webp" || res.Key != "abc" || res.OriginalURL != "https://ext.test/a.png" {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Raw["size"] != float64(12) {
		t.Fatalf("expected raw payload to be kept, got %+v", res.Raw)
	}
}

func TestUploadUnknownEnvironmentFallsBackToProduction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.FormValue("targetEnv"); got != "production" {
			t.Errorf("expected production, got %q", got)
		}
		_, _ = io.WriteString(w, `{"url":"https://cdn.test/a.avif"}`)
	}))
	defer srv.Close()

	c := testClient(srv.URL, "secret", models.Environment("staging"))
	if _, err := c.Upload(context.Background(), writeAsset(t), "https://forum.test/d/1", "avif", models.UploadOptions{}); err != nil {
		t.Fatalf("upload: %v", err)
	}
}

func TestUploadErrors(t *testing.T) {
	longBody := strings.Repeat("x", 250)
	tests := []struct {
		name      string
		status    int
		body      string
		wantInMsg string
		wantDup   string
	}{
		{name: "truncated body", status: http.StatusBadRequest, body: longBody, wantInMsg: "HTTP 400 - " + strings.Repeat("x", 200) + "...[truncated]"},
		{name: "short body", status: http.StatusInternalServerError, body: "boom", wantInMsg: "HTTP 500 - boom"},
		{name: "missing url", status: http.StatusOK, body: `{"key":"abc"}`, wantInMsg: "missing url"},
		{name: "invalid json", status: http.StatusOK, body: `nope`, wantInMsg: "upload response is invalid"},
		{name: "duplicate", status: http.StatusConflict, body: `{"url":"https://cdn.test/existing.avif","key":"k1"}`, wantDup: "https://cdn.test/existing.avif"},
		{name: "conflict without url", status: http.StatusConflict, body: `{"error":"busy"}`, wantInMsg: "HTTP 409"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			_, err := testClient(srv.URL, "secret", "").Upload(context.Background(), writeAsset(t), "https://forum.test/d/1", "avif", models.UploadOptions{})
			if !apperr.IsKind(err, apperr.KindUpload) {
				t.Fatalf("expected upload error, got %v", err)
			}
			if tc.wantDup != "" {
				dup, ok := AsDuplicate(err)
				if !ok {
					t.Fatalf("expected duplicate error, got %v", err)
				}
				if dup.OptimizedURL != tc.wantDup || dup.Result().Key != "k1" {
					t.Fatalf("unexpected duplicate %+v", dup)
				}
				return
			}
			if _, ok := AsDuplicate(err); ok {
				t.Fatalf("did not expect duplicate error")
			}
			if !strings.Contains(err.Error(), tc.wantInMsg) {
				t.Fatalf("expected %q in %q", tc.wantInMsg, err.Error())
			}
		})
	}
}

func TestUploadRequiresConfiguration(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, "", "").Upload(context.Background(), writeAsset(t), "https://forum.test/d/1", "avif", models.UploadOptions{})
	if !apperr.IsKind(err, apperr.KindConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
	if called {
		t.Fatalf("backend should not be called when unconfigured")
	}
}
