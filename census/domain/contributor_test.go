package domain

import (
	"reflect"
	"testing"
)

func TestContributorMapAdd(t *testing.T) {
	m := make(ContributorMap)

	m.Add(Commit{Username: "alice", Email: "alice@example.com", Date: "2026-03-01T10:00:00Z"})
	m.Add(Commit{Username: "Alice Smith", Email: "alice@example.com", Date: "2026-01-15T10:00:00Z"})
	m.Add(Commit{Username: "alice", Email: "alice@example.com", Date: "2026-04-20T10:00:00Z"})
	m.Add(Commit{Username: "bob", Email: "bob@example.com", Date: "2026-02-01T00:00:00Z"})

	if len(m) != 2 {
		t.Fatalf("expected 2 contributors, got %d", len(m))
	}

	alice := m["alice@example.com"]
	if alice == nil {
		t.Fatal("alice missing from map")
	}
	if got, want := alice.LastCommitDate, "2026-04-20T10:00:00Z"; got != want {
		t.Errorf("LastCommitDate = %q, want %q", got, want)
	}
	if got, want := alice.Names(), []string{"Alice Smith", "alice"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestContributorMapAddNeverRegressesDate(t *testing.T) {
	m := make(ContributorMap)
	dates := []string{
		"2026-02-01T00:00:00Z",
		"2026-05-01T00:00:00Z",
		"2026-03-01T00:00:00Z",
		"2026-01-01T00:00:00Z",
	}
	for _, d := range dates {
		m.Add(Commit{Username: "u", Email: "u@example.com", Date: d})
	}
	if got, want := m["u@example.com"].LastCommitDate, "2026-05-01T00:00:00Z"; got != want {
		t.Errorf("LastCommitDate = %q, want %q", got, want)
	}
}

func TestParseRepo(t *testing.T) {
	tests := []struct {
		name  string
		spec  string
		owner string
		leaf  string
	}{
		{
			name:  "two segments",
			spec:  "octo/hello",
			owner: "octo",
			leaf:  "hello",
		},
		{
			name:  "nested namespace",
			spec:  "group/subgroup/project",
			owner: "group/subgroup",
			leaf:  "project",
		},
		{
			name:  "single segment",
			spec:  "hello",
			owner: "",
			leaf:  "hello",
		},
		{
			name:  "surrounding slashes trimmed",
			spec:  "/octo/hello/",
			owner: "octo",
			leaf:  "hello",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := ParseRepo(tt.spec)
			if repo.Owner != tt.owner || repo.Name != tt.leaf {
				t.Errorf("ParseRepo(%q) = %q/%q, want %q/%q", tt.spec, repo.Owner, repo.Name, tt.owner, tt.leaf)
			}
		})
	}
}

func TestSegments(t *testing.T) {
	tests := []struct {
		spec string
		want int
	}{
		{"", 0},
		{"repo", 1},
		{"owner/repo", 2},
		{"org/project/repo", 3},
		{"/owner/repo/", 2},
	}
	for _, tt := range tests {
		if got := Segments(tt.spec); got != tt.want {
			t.Errorf("Segments(%q) = %d, want %d", tt.spec, got, tt.want)
		}
	}
}

func TestCanonicalDate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "already UTC",
			in:   "2026-03-01T10:00:00Z",
			want: "2026-03-01T10:00:00Z",
		},
		{
			name: "offset normalized",
			in:   "2026-03-01T12:00:00+02:00",
			want: "2026-03-01T10:00:00Z",
		},
		{
			name: "unparsable passes through",
			in:   "yesterday",
			want: "yesterday",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanonicalDate(tt.in); got != tt.want {
				t.Errorf("CanonicalDate(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
