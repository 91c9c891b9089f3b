package scm

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// Pager turns one logical list call into a sequence of page requests. The
// engine asks it for the items on a page, whether another page follows, and
// how to rewrite the request to target it. Implementations are created fresh
// per logical call; they may carry state (SkipPager does).
type Pager interface {
	// Items extracts the item payloads from a page.
	Items(p *Page) []gjson.Result
	// HasMore reports whether another page follows p.
	HasMore(p *Page) bool
	// Next rewrites req in place to target the page after p.
	Next(req *http.Request, p *Page) error
}

func itemsAt(p *Page, path string) []gjson.Result {
	if path == "" {
		return gjson.ParseBytes(p.Body).Array()
	}
	return gjson.GetBytes(p.Body, path).Array()
}

// LinkPager follows RFC 5988 Link headers with rel="next" (GitHub, GitLab).
// ItemsPath is the gjson path of the item array; empty means the body itself
// is the array.
type LinkPager struct {
	ItemsPath string
}

func (lp *LinkPager) Items(p *Page) []gjson.Result { return itemsAt(p, lp.ItemsPath) }

func (lp *LinkPager) HasMore(p *Page) bool {
	return nextLink(p.Header.Get("Link")) != ""
}

func (lp *LinkPager) Next(req *http.Request, p *Page) error {
	next := nextLink(p.Header.Get("Link"))
	if next == "" {
		return errors.New("no rel=\"next\" link on page")
	}
	u, err := url.Parse(next)
	if err != nil {
		return errors.Wrapf(err, "parsing next link %q", next)
	}
	req.URL = u
	return nil
}

// nextLink pulls the URL out of the rel="next" entry of a Link header, or ""
// when there is none.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		sections := strings.Split(part, ";")
		if len(sections) < 2 {
			continue
		}
		target := strings.Trim(strings.TrimSpace(sections[0]), "<>")
		for _, param := range sections[1:] {
			param = strings.TrimSpace(param)
			if param == `rel="next"` || param == "rel=next" {
				return target
			}
		}
	}
	return ""
}

// CursorPager follows a response field holding the full URL of the next page
// (Bitbucket Cloud's "next").
type CursorPager struct {
	ItemsPath string
	NextPath  string
}

func (cp *CursorPager) Items(p *Page) []gjson.Result { return itemsAt(p, cp.ItemsPath) }

func (cp *CursorPager) HasMore(p *Page) bool {
	return gjson.GetBytes(p.Body, cp.NextPath).String() != ""
}

func (cp *CursorPager) Next(req *http.Request, p *Page) error {
	next := gjson.GetBytes(p.Body, cp.NextPath).String()
	if next == "" {
		return errors.Errorf("response field %q empty, no next page", cp.NextPath)
	}
	u, err := url.Parse(next)
	if err != nil {
		return errors.Wrapf(err, "parsing next page URL %q", next)
	}
	req.URL = u
	return nil
}

// OffsetPager follows a response field holding the offset of the next page
// and feeds it back as a query parameter (Bitbucket Server's "nextPageStart"
// and "start").
type OffsetPager struct {
	ItemsPath string
	NextPath  string
	Param     string
}

func (op *OffsetPager) Items(p *Page) []gjson.Result { return itemsAt(p, op.ItemsPath) }

func (op *OffsetPager) HasMore(p *Page) bool {
	next := gjson.GetBytes(p.Body, op.NextPath)
	return next.Exists() && next.Int() > 0
}

func (op *OffsetPager) Next(req *http.Request, p *Page) error {
	next := gjson.GetBytes(p.Body, op.NextPath)
	if !next.Exists() {
		return errors.Errorf("response field %q missing, no next page", op.NextPath)
	}
	q := req.URL.Query()
	q.Set(op.Param, strconv.FormatInt(next.Int(), 10))
	req.URL.RawQuery = q.Encode()
	return nil
}

// SkipPager keeps requesting with an increasing skip offset until a page
// comes back empty, for platforms with no explicit "next" signal (Azure
// DevOps' $skip). It accumulates the item count across pages, so use one
// instance per logical call.
type SkipPager struct {
	ItemsPath string
	Param     string

	fetched int64
}

func (sp *SkipPager) Items(p *Page) []gjson.Result { return itemsAt(p, sp.ItemsPath) }

func (sp *SkipPager) HasMore(p *Page) bool {
	return len(sp.Items(p)) > 0
}

func (sp *SkipPager) Next(req *http.Request, p *Page) error {
	sp.fetched += int64(len(sp.Items(p)))
	q := req.URL.Query()
	q.Set(sp.Param, strconv.FormatInt(sp.fetched, 10))
	req.URL.RawQuery = q.Encode()
	return nil
}
