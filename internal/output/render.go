// Package output renders a finished report to the console, JSON, or CSV.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/gitcensus/gitcensus/census/application"
	"github.com/gitcensus/gitcensus/census/domain"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	repoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	countStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle = lipgloss.NewStyle().Underline(true)
)

// Render writes the report in the requested format, contributors ordered by
// sortBy (email, name, or date).
func Render(w io.Writer, report *application.Report, format, sortBy string) error {
	switch format {
	case "json":
		return renderJSON(w, report, sortBy)
	case "csv":
		return renderCSV(w, report, sortBy)
	default:
		return renderConsole(w, report, sortBy)
	}
}

// row is the flattened contributor shape shared by the JSON and CSV forms.
type row struct {
	Email          string   `json:"email"`
	Usernames      []string `json:"usernames"`
	LastCommitDate string   `json:"lastCommitDate"`
}

func rows(m domain.ContributorMap, sortBy string) []row {
	out := make([]row, 0, len(m))
	for _, email := range m.Emails() {
		c := m[email]
		out = append(out, row{Email: c.Email, Usernames: c.Names(), LastCommitDate: c.LastCommitDate})
	}
	switch sortBy {
	case "name":
		sort.SliceStable(out, func(i, j int) bool {
			return strings.Join(out[i].Usernames, ",") < strings.Join(out[j].Usernames, ",")
		})
	case "date":
		// Most recent activity first.
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].LastCommitDate > out[j].LastCommitDate
		})
	}
	return out
}

func renderConsole(w io.Writer, report *application.Report, sortBy string) error {
	fmt.Fprintln(w, titleStyle.Render("Active contributors"))
	fmt.Fprintln(w)

	for _, rr := range report.Repos {
		fmt.Fprintf(w, "  %s  %s\n",
			repoStyle.Render(rr.Repo),
			countStyle.Render(fmt.Sprintf("%d", len(rr.Contributors))))
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %s\n",
		titleStyle.Render("Total unique contributors:"),
		countStyle.Render(fmt.Sprintf("%d", report.Total())))
	fmt.Fprintln(w)

	if report.Total() == 0 {
		return nil
	}

	fmt.Fprintln(w, headerStyle.Render("email"), "", headerStyle.Render("usernames"), "", headerStyle.Render("last commit"))
	for _, r := range rows(report.Contributors, sortBy) {
		fmt.Fprintf(w, "%s  %s  %s\n",
			r.Email,
			strings.Join(r.Usernames, ", "),
			mutedStyle.Render(r.LastCommitDate))
	}
	return nil
}

func renderJSON(w io.Writer, report *application.Report, sortBy string) error {
	type repoDoc struct {
		Repo         string `json:"repo"`
		Count        int    `json:"contributorCount"`
		Contributors []row  `json:"contributors"`
	}
	doc := struct {
		Repos        []repoDoc `json:"repos"`
		Total        int       `json:"totalContributors"`
		Contributors []row     `json:"contributors"`
	}{
		Repos: make([]repoDoc, 0, len(report.Repos)),
		Total: report.Total(),
	}
	for _, rr := range report.Repos {
		doc.Repos = append(doc.Repos, repoDoc{
			Repo:         rr.Repo,
			Count:        len(rr.Contributors),
			Contributors: rows(rr.Contributors, sortBy),
		})
	}
	doc.Contributors = rows(report.Contributors, sortBy)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func renderCSV(w io.Writer, report *application.Report, sortBy string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"email", "usernames", "last_commit_date"}); err != nil {
		return err
	}
	for _, r := range rows(report.Contributors, sortBy) {
		if err := cw.Write([]string{r.Email, strings.Join(r.Usernames, ";"), r.LastCommitDate}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
