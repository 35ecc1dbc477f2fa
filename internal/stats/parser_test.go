package stats

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestParseCount(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{"1.2K", 1200},
		{"1.5M", 1500000},
		{"123", 123},
		{"12,345", 12345},
		{"1 234", 1234},
		{"5.6K subscribers", 5600},
		{"42k", 42000},
		{"0", 0},
		{"", 0},
		{"no number", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseCount(tt.input)
			if result != tt.expected {
				t.Errorf("parseCount(%q) = %d, want %d", tt.input, result, tt.expected)
			}
		})
	}
}

func newTestParser(serverURL string) *Parser {
	p := NewParser(2000, 0, zap.NewNop())
	p.baseURL = serverURL
	return p
}

func TestPostExists(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected bool
	}{
		{"live post", http.StatusOK, `<div class="tgme_widget_message">ad text</div>`, true},
		{"deleted post 404", http.StatusNotFound, "", false},
		{"stub page without widget", http.StatusOK, `<div class="tgme_page">Channel</div>`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			exists, err := newTestParser(srv.URL).PostExists(context.Background(), "somechannel", 42)
			if err != nil {
				t.Fatalf("PostExists: %v", err)
			}
			if exists != tt.expected {
				t.Errorf("PostExists = %v, want %v", exists, tt.expected)
			}
		})
	}
}

func TestFetchChannelStats(t *testing.T) {
	html := `
		<div class="tgme_channel_info_header_title">foo<i class="verified-icon"></i></div>
		<div class="tgme_channel_info_counter">
			<span class="counter_value">12.3K</span>
			<span class="counter_type">subscribers</span>
		</div>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(html))
	}))
	defer srv.Close()

	stats, err := newTestParser(srv.URL).FetchChannelStats(context.Background(), "foo")
	if err != nil {
		t.Fatalf("FetchChannelStats: %v", err)
	}
	if stats.Subscribers == nil || *stats.Subscribers != 12300 {
		t.Errorf("Subscribers = %v, want 12300", stats.Subscribers)
	}
	if !stats.VerifiedBadge {
		t.Error("VerifiedBadge = false, want true")
	}
}
