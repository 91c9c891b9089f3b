package domain

import "sort"

// Contributor is a unique person identified by commit email. A contributor
// may appear under several display usernames across commits; all are kept.
type Contributor struct {
	Email          string              `json:"email"`
	Usernames      map[string]struct{} `json:"-"`
	LastCommitDate string              `json:"lastCommitDate"`
}

// Names returns the contributor's usernames sorted for stable output.
func (c *Contributor) Names() []string {
	names := make([]string, 0, len(c.Usernames))
	for n := range c.Usernames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ContributorMap maps commit email to Contributor. One instance exists per
// repository plus one global instance; both are fed independently from the
// same commits.
type ContributorMap map[string]*Contributor

// Add upserts a commit into the map. A first sighting of an email creates the
// Contributor; later sightings union the username in and advance
// LastCommitDate monotonically (string comparison, see Commit.Date).
func (m ContributorMap) Add(c Commit) {
	existing, ok := m[c.Email]
	if !ok {
		existing = &Contributor{
			Email:          c.Email,
			Usernames:      make(map[string]struct{}),
			LastCommitDate: c.Date,
		}
		m[c.Email] = existing
	}
	if c.Username != "" {
		existing.Usernames[c.Username] = struct{}{}
	}
	if c.Date > existing.LastCommitDate {
		existing.LastCommitDate = c.Date
	}
}

// Emails returns the map's keys sorted for stable output.
func (m ContributorMap) Emails() []string {
	emails := make([]string, 0, len(m))
	for e := range m {
		emails = append(emails, e)
	}
	sort.Strings(emails)
	return emails
}
