package bitbucket

import (
	"strconv"
	"testing"
	"time"

	"github.com/tidwall/gjson"
)

func TestSplitRawAuthor(t *testing.T) {
	tests := []struct {
		raw   string
		name  string
		email string
	}{
		{"Jane Dev <jane@example.com>", "Jane Dev", "jane@example.com"},
		{"<jane@example.com>", "", "jane@example.com"},
		{"Jane Dev", "Jane Dev", ""},
		{"", "", ""},
		{"Weird <Name> <real@example.com>", "Weird <Name>", "real@example.com"},
	}
	for _, tt := range tests {
		name, email := splitRawAuthor(tt.raw)
		if name != tt.name || email != tt.email {
			t.Errorf("splitRawAuthor(%q) = (%q, %q), want (%q, %q)", tt.raw, name, email, tt.name, tt.email)
		}
	}
}

func TestAuthHeader(t *testing.T) {
	if got := authHeader("", "tok"); got != "Bearer tok" {
		t.Errorf("bearer form = %q", got)
	}
	// base64("user:pass")
	if got := authHeader("user", "pass"); got != "Basic dXNlcjpwYXNz" {
		t.Errorf("basic form = %q", got)
	}
}

func TestMapCloudCommit(t *testing.T) {
	item := gjson.Parse(`{
		"author": {
			"raw": "Jane Dev <jane@example.com>",
			"user": {"display_name": "jdev"}
		},
		"date": "2026-03-01T12:00:00+02:00"
	}`)
	c := mapCloudCommit(item)
	if c.Username != "jdev" {
		t.Errorf("Username = %q, want the account display name", c.Username)
	}
	if c.Email != "jane@example.com" {
		t.Errorf("Email = %q", c.Email)
	}
	if c.Date != "2026-03-01T10:00:00Z" {
		t.Errorf("Date = %q, want the UTC normalization", c.Date)
	}

	// No linked account: fall back to the raw author name.
	item = gjson.Parse(`{"author":{"raw":"Jane Dev <jane@example.com>"},"date":"2026-03-01T10:00:00Z"}`)
	if c := mapCloudCommit(item); c.Username != "Jane Dev" {
		t.Errorf("Username = %q, want the raw name fallback", c.Username)
	}
}

func TestMapCloudRepos(t *testing.T) {
	items := gjson.Parse(`[
		{"full_name":"acme/app","is_private":true,"mainbranch":{"name":"main"}},
		{"full_name":"acme/mystery"}
	]`).Array()
	repos := mapCloudRepos(items)
	if len(repos) != 2 {
		t.Fatalf("got %d repos, want 2", len(repos))
	}
	if repos[0].FullName() != "acme/app" || repos[0].Private == nil || !*repos[0].Private {
		t.Errorf("first repo = %+v", repos[0])
	}
	// Absent is_private must stay unknown, not default to false.
	if repos[1].Private != nil {
		t.Error("missing is_private should leave visibility unknown")
	}
}

func TestMapServerCommit(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC).UnixMilli()
	item := gjson.Parse(`{
		"author": {"name": "jdev", "displayName": "Jane Dev", "emailAddress": "jane@example.com"},
		"authorTimestamp": ` + strconv.FormatInt(ts, 10) + `
	}`)
	c := mapServerCommit(item)
	if c.Username != "Jane Dev" || c.Email != "jane@example.com" {
		t.Errorf("mapServerCommit = %+v", c)
	}
	if c.Date != "2026-03-01T10:00:00Z" {
		t.Errorf("Date = %q, want the epoch-millis timestamp in canonical form", c.Date)
	}
}

func TestMapServerRepos(t *testing.T) {
	items := gjson.Parse(`[{"slug":"app","project":{"key":"ACME"},"public":false}]`).Array()
	repos := mapServerRepos(items)
	if len(repos) != 1 {
		t.Fatalf("got %d repos, want 1", len(repos))
	}
	r := repos[0]
	if r.FullName() != "ACME/app" {
		t.Errorf("FullName() = %q", r.FullName())
	}
	// public:false means private.
	if r.Private == nil || !*r.Private {
		t.Error("Private not derived from the public field")
	}
}

func TestNewServerRequiresBaseURL(t *testing.T) {
	if _, err := NewServer(ServerConfig{}); err == nil {
		t.Error("expected an error without a base URL")
	}
}
