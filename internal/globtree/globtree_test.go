package globtree

import (
	"testing"

	"github.com/yucer/userscript-proxy/urlmatch"
)

func asSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}

func equalSets(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	gotSet := asSet(got)
	for _, w := range want {
		if _, ok := gotSet[w]; !ok {
			return false
		}
	}
	return true
}

func TestInsert(t *testing.T) {
	t.Parallel()

	t.Run("duplicate patterns with distinct values", func(t *testing.T) {
		t.Parallel()

		tr := New[string]()
		tr.Insert("https://example.com/*", "S1")
		tr.Insert("https://example.com/*", "S2")

		got := tr.Match("https://example.com/page")
		if !equalSets(got, []string{"S1", "S2"}) {
			t.Fatalf("got %v, want S1 and S2", got)
		}
	})

	t.Run("same value is reported once", func(t *testing.T) {
		t.Parallel()

		tr := New[string]()
		tr.Insert("https://example.com/*", "S1")
		tr.Insert("https://*/page", "S1")

		got := tr.Match("https://example.com/page")
		if len(got) != 1 || got[0] != "S1" {
			t.Fatalf("got %v, want a single S1", got)
		}
	})
}

func TestMatch(t *testing.T) {
	t.Parallel()

	t.Run("full anchoring", func(t *testing.T) {
		t.Parallel()

		tr := New[string]()
		tr.Insert("example.com", "bare")

		if got := tr.Match("https://example.com/"); len(got) != 0 {
			t.Fatalf("unanchored match: %v", got)
		}
		if got := tr.Match("example.com"); !equalSets(got, []string{"bare"}) {
			t.Fatalf("got %v, want bare", got)
		}
	})

	t.Run("wildcard spans zero characters", func(t *testing.T) {
		t.Parallel()

		tr := New[string]()
		tr.Insert("ab*cd", "ab*cd")

		if got := tr.Match("abcd"); !equalSets(got, []string{"ab*cd"}) {
			t.Fatalf("got %v, want ab*cd", got)
		}
	})

	t.Run("diverging patterns share prefixes", func(t *testing.T) {
		t.Parallel()

		tr := New[string]()
		tr.Insert("https://example.com/api/v*", "v")
		tr.Insert("https://example.com/api/v*/endpoint", "endpoint")
		tr.Insert("https://example.com/*", "all")

		got := tr.Match("https://example.com/api/v2/endpoint")
		want := []string{"v", "endpoint", "all"}
		if !equalSets(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}

		got = tr.Match("https://example.com/api/v2/other")
		want = []string{"v", "all"}
		if !equalSets(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	t.Run("trailing wildcard matches empty remainder", func(t *testing.T) {
		t.Parallel()

		tr := New[string]()
		tr.Insert("https://example.com/*", "S")

		if got := tr.Match("https://example.com/"); !equalSets(got, []string{"S"}) {
			t.Fatalf("got %v, want S", got)
		}
	})

	t.Run("no patterns", func(t *testing.T) {
		t.Parallel()

		tr := New[string]()
		if got := tr.Match("https://example.com/"); len(got) != 0 {
			t.Fatalf("got %v, want nothing", got)
		}
	})
}

// TestMatchAgreesWithUrlmatch cross-checks tree matching against the
// single-pattern primitive over a grid of patterns and URLs.
func TestMatchAgreesWithUrlmatch(t *testing.T) {
	t.Parallel()

	patterns := []string{
		"https://example.com/*",
		"https://example.com/page",
		"https://*.example.com/*",
		"https://other.com/*",
		"*//example.com/*",
		"https://example.com/api/v*/users",
		"*",
	}
	urls := []string{
		"https://example.com/page",
		"https://example.com/",
		"https://sub.example.com/x",
		"https://other.com/page",
		"https://example.com/api/v2/users",
		"http://example.com/page",
		"",
	}

	tr := New[string]()
	for _, p := range patterns {
		tr.Insert(p, p)
	}
	tr.Compact()

	for _, u := range urls {
		got := asSet(tr.Match(u))
		for _, p := range patterns {
			_, inTree := got[p]
			if want := urlmatch.Match(p, u); inTree != want {
				t.Errorf("pattern %q, url %q: tree says %v, urlmatch says %v", p, u, inTree, want)
			}
		}
	}
}
