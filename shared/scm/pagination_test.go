package scm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tidwall/gjson"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(ClientOptions{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func fetch(t *testing.T, client *Client, url string, pager Pager, opts FetchOptions) []gjson.Result {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	items, err := client.FetchAll(context.Background(), req, pager, NopLimiter{}, opts)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	return items
}

func TestNextLink(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{
			name:   "next among several rels",
			header: `<https://api.example.com/x?page=2>; rel="next", <https://api.example.com/x?page=9>; rel="last"`,
			want:   "https://api.example.com/x?page=2",
		},
		{
			name:   "no next",
			header: `<https://api.example.com/x?page=1>; rel="prev"`,
			want:   "",
		},
		{
			name:   "empty header",
			header: "",
			want:   "",
		},
		{
			name:   "unquoted rel",
			header: `<https://api.example.com/x?page=3>; rel=next`,
			want:   "https://api.example.com/x?page=3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextLink(tt.header); got != tt.want {
				t.Errorf("nextLink(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

// Three pages of sizes 2, 2, 1, with no rel="next" on the last: fetching must
// aggregate exactly 5 items over exactly 3 HTTP calls.
func TestLinkPagerTermination(t *testing.T) {
	var calls int
	var baseURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch r.URL.Query().Get("page") {
		case "", "1":
			w.Header().Set("Link", fmt.Sprintf(`<%s/items?page=2>; rel="next"`, baseURL))
			fmt.Fprint(w, `[{"id":1},{"id":2}]`)
		case "2":
			w.Header().Set("Link", fmt.Sprintf(`<%s/items?page=3>; rel="next"`, baseURL))
			fmt.Fprint(w, `[{"id":3},{"id":4}]`)
		case "3":
			fmt.Fprint(w, `[{"id":5}]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	baseURL = srv.URL

	items := fetch(t, newTestClient(t), srv.URL+"/items", &LinkPager{}, FetchOptions{})
	if len(items) != 5 {
		t.Errorf("got %d items, want 5", len(items))
	}
	if calls != 3 {
		t.Errorf("made %d HTTP calls, want 3", calls)
	}
	if got := items[4].Get("id").Int(); got != 5 {
		t.Errorf("last item id = %d, want 5", got)
	}
}

// Page 2's second item is out of range: the result is truncated to the 3
// items before it and pagination stops even though more pages are
// advertised.
func TestPredicateTruncation(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch r.URL.Query().Get("cursor") {
		case "":
			fmt.Fprintf(w, `{"values":[{"date":"2026-05-04T00:00:00Z"},{"date":"2026-05-03T00:00:00Z"}],"next":"%s?cursor=b"}`, "http://"+r.Host)
		case "b":
			fmt.Fprintf(w, `{"values":[{"date":"2026-05-02T00:00:00Z"},{"date":"2026-01-01T00:00:00Z"}],"next":"%s?cursor=c"}`, "http://"+r.Host)
		default:
			t.Errorf("page after truncation was requested: %s", r.URL)
			fmt.Fprint(w, `{"values":[]}`)
		}
	}))
	defer srv.Close()

	cutoff := "2026-02-01T00:00:00Z"
	items := fetch(t, newTestClient(t), srv.URL, &CursorPager{ItemsPath: "values", NextPath: "next"}, FetchOptions{
		Stop: func(item gjson.Result) bool {
			return item.Get("date").String() < cutoff
		},
	})

	if len(items) != 3 {
		t.Errorf("got %d items, want 3", len(items))
	}
	if calls != 2 {
		t.Errorf("made %d HTTP calls, want 2", calls)
	}
}

func TestOffsetPager(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("start") {
		case "":
			fmt.Fprint(w, `{"values":[{"id":1},{"id":2}],"isLastPage":false,"nextPageStart":2}`)
		case "2":
			fmt.Fprint(w, `{"values":[{"id":3}],"isLastPage":true}`)
		default:
			t.Errorf("unexpected start offset %q", r.URL.Query().Get("start"))
		}
	}))
	defer srv.Close()

	pager := &OffsetPager{ItemsPath: "values", NextPath: "nextPageStart", Param: "start"}
	items := fetch(t, newTestClient(t), srv.URL, pager, FetchOptions{})
	if len(items) != 3 {
		t.Errorf("got %d items, want 3", len(items))
	}
}

// Count-until-empty: the client keeps increasing $skip by the accumulated
// item count until a page comes back with zero items.
func TestSkipPager(t *testing.T) {
	var offsets []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		skip := r.URL.Query().Get("$skip")
		offsets = append(offsets, skip)
		switch skip {
		case "":
			fmt.Fprint(w, `{"value":[{"id":1},{"id":2}]}`)
		case "2":
			fmt.Fprint(w, `{"value":[{"id":3}]}`)
		case "3":
			fmt.Fprint(w, `{"value":[]}`)
		default:
			t.Errorf("unexpected $skip %q", skip)
		}
	}))
	defer srv.Close()

	pager := &SkipPager{ItemsPath: "value", Param: "$skip"}
	items := fetch(t, newTestClient(t), srv.URL, pager, FetchOptions{})
	if len(items) != 3 {
		t.Errorf("got %d items, want 3", len(items))
	}
	if len(offsets) != 3 {
		t.Errorf("made %d HTTP calls, want 3 (last one empty)", len(offsets))
	}
}

func TestCursorPagerSinglePage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"values":[{"id":1}]}`)
	}))
	defer srv.Close()

	items := fetch(t, newTestClient(t), srv.URL, &CursorPager{ItemsPath: "values", NextPath: "next"}, FetchOptions{})
	if len(items) != 1 {
		t.Errorf("got %d items, want 1", len(items))
	}
}
