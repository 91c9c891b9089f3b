package domain

import "strings"

// Repo identifies a repository on a source platform.
// Owner is the namespace path and may itself contain slashes (GitLab
// subgroups, Azure DevOps org/project). Private is a tri-state: nil means the
// platform has not told us yet. Repos with unresolved visibility are dropped
// by the resolver's visibility filter, never guessed.
type Repo struct {
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	Private       *bool  `json:"private,omitempty"`
	DefaultBranch string `json:"defaultBranch,omitempty"`
}

// FullName returns the qualified "owner/name" identity of the repo.
func (r Repo) FullName() string {
	return r.Owner + "/" + r.Name
}

// Same reports whether two repos share the same owner+name identity.
func (r Repo) Same(other Repo) bool {
	return r.Owner == other.Owner && r.Name == other.Name
}

// ParseRepo splits a qualified repo spec into owner and name. The final
// segment is the repo name; everything before it is the owner namespace.
func ParseRepo(spec string) Repo {
	spec = strings.Trim(spec, "/")
	idx := strings.LastIndex(spec, "/")
	if idx < 0 {
		return Repo{Name: spec}
	}
	return Repo{Owner: spec[:idx], Name: spec[idx+1:]}
}

// Segments counts the slash-separated path segments of a repo spec.
func Segments(spec string) int {
	spec = strings.Trim(spec, "/")
	if spec == "" {
		return 0
	}
	return strings.Count(spec, "/") + 1
}
