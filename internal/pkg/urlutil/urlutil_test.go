package urlutil

import (
	"net/url"
	"testing"
)

func TestBuildFrontendURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		path    string
		query   url.Values
		want    string
	}{
		{
			name:    "dashboard",
			baseURL: "http://localhost:5173",
			path:    "/dashboard",
			want:    "http://localhost:5173/dashboard",
		},
		{
			name:    "trailing slash on base",
			baseURL: "https://app.example.com/",
			path:    "dashboard",
			want:    "https://app.example.com/dashboard",
		},
		{
			name:    "login failure",
			baseURL: "https://app.example.com",
			path:    "/login",
			query:   url.Values{"error": {"oauth_failed"}},
			want:    "https://app.example.com/login?error=oauth_failed",
		},
		{
			name:    "base path prefix kept",
			baseURL: "https://example.com/app",
			path:    "/login",
			query:   url.Values{"error": {"oauth_failed"}},
			want:    "https://example.com/app/login?error=oauth_failed",
		},
		{
			name:    "fragment dropped",
			baseURL: "https://example.com/#/home",
			path:    "/dashboard",
			want:    "https://example.com/dashboard",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildFrontendURL(tt.baseURL, tt.path, tt.query)
			if err != nil {
				t.Fatalf("BuildFrontendURL() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("BuildFrontendURL() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildFrontendURL_InvalidBase(t *testing.T) {
	if _, err := BuildFrontendURL("://bad", "/login", nil); err == nil {
		t.Error("BuildFrontendURL() expected error for unparseable base URL")
	}
}
