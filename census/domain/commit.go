package domain

import "time"

// Commit is the canonical, post-mapping shape of a commit. Platform adapters
// convert their wire formats into this before anything else sees them.
//
// Date is the author time as an ISO-8601 (RFC 3339) UTC string. The format is
// fixed-width and zero-padded, so lexicographic comparison orders commits
// correctly without re-parsing.
type Commit struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Date     string `json:"commitDate"`
}

// DateOf renders t as a canonical commit date string.
func DateOf(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// CanonicalDate re-renders a platform timestamp in the canonical form.
// Platforms emit RFC 3339 with varying zone offsets; normalizing to UTC keeps
// lexicographic date comparison valid. Unparsable input passes through
// unchanged.
func CanonicalDate(s string) string {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}
	return DateOf(t)
}
