package search

import (
	"errors"
	"sort"
	"testing"
)

func newEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	e, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func sortedSearch(e *Engine, query string) []string {
	uids := e.Search(query)
	sort.Strings(uids)
	return uids
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestExactWordsMatchesWholeTokensOnly(t *testing.T) {
	e := newEngine(t, Options{IndexMode: IndexModeExactWords})
	e.IndexDocument("doc-1", "the quick brown fox")

	if got := e.Search("quick"); !equal(got, []string{"doc-1"}) {
		t.Fatalf("whole token: expected [doc-1], got %v", got)
	}
	if got := e.Search("qui"); len(got) != 0 {
		t.Fatalf("partial token: expected no results, got %v", got)
	}
}

func TestAllSubstringsMatchesEverySubstring(t *testing.T) {
	e := newEngine(t, Options{})
	e.IndexDocument("doc-1", "fox")

	for _, sub := range []string{"f", "fo", "fox", "o", "ox", "x"} {
		if got := e.Search(sub); !equal(got, []string{"doc-1"}) {
			t.Errorf("substring %q: expected [doc-1], got %v", sub, got)
		}
	}
	if got := e.Search("fx"); len(got) != 0 {
		t.Fatalf("non-contiguous %q: expected no results, got %v", "fx", got)
	}
}

func TestPrefixesMatchesLeadingSubstringsOnly(t *testing.T) {
	e := newEngine(t, Options{IndexMode: IndexModePrefixes})
	e.IndexDocument("doc-1", "cat")

	if got := e.Search("ca"); !equal(got, []string{"doc-1"}) {
		t.Fatalf("prefix: expected [doc-1], got %v", got)
	}
	if got := e.Search("at"); len(got) != 0 {
		t.Fatalf("suffix: expected no results, got %v", got)
	}
}

func TestEmptyQueryReturnsAllKnownIdentifiers(t *testing.T) {
	e := newEngine(t, Options{})
	e.IndexDocument("doc-1", "some text")
	e.IndexDocument("doc-2", "   ") // whitespace-only still registers the uid
	e.IndexDocument("doc-3", "")

	if got := e.Search(""); !equal(got, []string{"doc-1", "doc-2", "doc-3"}) {
		t.Fatalf("empty query: expected all uids in index order, got %v", got)
	}
}

func TestWhitespaceOnlyQueryMatchesNothing(t *testing.T) {
	e := newEngine(t, Options{})
	e.IndexDocument("doc-1", "some text")

	// A non-empty query that tokenizes to nothing is resolved by the
	// inverted index, not the all-documents path.
	if got := e.Search("   "); len(got) != 0 {
		t.Fatalf("whitespace query: expected no results, got %v", got)
	}
}

func TestCaseFolding(t *testing.T) {
	e := newEngine(t, Options{IndexMode: IndexModeExactWords})
	e.IndexDocument("doc-1", "Name")

	if got := e.Search("name"); !equal(got, []string{"doc-1"}) {
		t.Fatalf("case-insensitive: expected [doc-1], got %v", got)
	}
	if got := e.Search("NAME"); !equal(got, []string{"doc-1"}) {
		t.Fatalf("case-insensitive upper query: expected [doc-1], got %v", got)
	}

	cs := newEngine(t, Options{IndexMode: IndexModeExactWords, CaseSensitive: true})
	cs.IndexDocument("doc-1", "Name")

	if got := cs.Search("name"); len(got) != 0 {
		t.Fatalf("case-sensitive: expected no results, got %v", got)
	}
	if got := cs.Search("Name"); !equal(got, []string{"doc-1"}) {
		t.Fatalf("case-sensitive exact: expected [doc-1], got %v", got)
	}
}

func TestReindexingSameIdentifierIsAdditive(t *testing.T) {
	e := newEngine(t, Options{IndexMode: IndexModeExactWords})
	e.IndexDocument("doc-1", "alpha")
	e.IndexDocument("doc-1", "beta")

	if got := e.Search("alpha"); !equal(got, []string{"doc-1"}) {
		t.Fatalf("original token lost after re-index: got %v", got)
	}
	if got := e.Search("beta"); !equal(got, []string{"doc-1"}) {
		t.Fatalf("new token missing after re-index: got %v", got)
	}
	if got := e.DocumentCount(); got != 1 {
		t.Fatalf("expected 1 document, got %d", got)
	}
}

func TestSetIndexModeLockedAfterFirstDocument(t *testing.T) {
	e := newEngine(t, Options{})
	if err := e.SetIndexMode(IndexModeExactWords); err != nil {
		t.Fatalf("mode change before indexing should succeed: %v", err)
	}

	e.IndexDocument("doc-1", "text")
	err := e.SetIndexMode(IndexModePrefixes)
	if !errors.Is(err, ErrIndexModeLocked) {
		t.Fatalf("expected ErrIndexModeLocked, got %v", err)
	}
	if got := e.IndexMode(); got != IndexModeExactWords {
		t.Fatalf("mode changed despite lock: %v", got)
	}
}

func TestSetIndexModeLockedEvenAfterEmptyDocument(t *testing.T) {
	e := newEngine(t, Options{})
	e.IndexDocument("doc-1", "")

	if err := e.SetIndexMode(IndexModeExactWords); !errors.Is(err, ErrIndexModeLocked) {
		t.Fatalf("expected ErrIndexModeLocked after empty-text index, got %v", err)
	}
}

func TestSetIndexModeRejectsUnknownMode(t *testing.T) {
	e := newEngine(t, Options{})
	if err := e.SetIndexMode("SUFFIXES"); !errors.Is(err, ErrInvalidIndexMode) {
		t.Fatalf("expected ErrInvalidIndexMode, got %v", err)
	}
}

func TestMultiTokenQueryIsLogicalAND(t *testing.T) {
	e := newEngine(t, Options{IndexMode: IndexModeExactWords})
	e.IndexDocument("A", "long road")
	e.IndexDocument("B", "long lane")

	if got := e.Search("long road"); !equal(got, []string{"A"}) {
		t.Fatalf("two-token query: expected [A], got %v", got)
	}
	if got := sortedSearch(e, "long"); !equal(got, []string{"A", "B"}) {
		t.Fatalf("one-token query: expected [A B], got %v", got)
	}
}

func TestIndexDocumentChains(t *testing.T) {
	e := newEngine(t, Options{IndexMode: IndexModeExactWords})
	e.IndexDocument("A", "one").IndexDocument("B", "two").IndexDocument("C", "three")

	if got := e.DocumentCount(); got != 3 {
		t.Fatalf("expected 3 documents, got %d", got)
	}
}

func TestTokenizePatternIsMutableAndNonRetroactive(t *testing.T) {
	e := newEngine(t, Options{IndexMode: IndexModeExactWords})
	e.IndexDocument("doc-1", "red,green blue")

	// With the default pattern "red,green" is a single token.
	if got := e.Search("red,green"); !equal(got, []string{"doc-1"}) {
		t.Fatalf("expected [doc-1] for comma-joined token, got %v", got)
	}

	if err := e.SetTokenizePattern(`[\s,]+`); err != nil {
		t.Fatalf("SetTokenizePattern: %v", err)
	}
	e.IndexDocument("doc-2", "red,green")

	// doc-2 was split on the comma; doc-1 keeps its old tokens.
	if got := e.Search("red"); !equal(got, []string{"doc-2"}) {
		t.Fatalf("expected [doc-2] for %q, got %v", "red", got)
	}
	if got := e.Search("blue"); !equal(got, []string{"doc-1"}) {
		t.Fatalf("old tokens must survive a pattern change, got %v", got)
	}
}

func TestSetTokenizePatternRejectsMalformedRegexp(t *testing.T) {
	e := newEngine(t, Options{})
	if err := e.SetTokenizePattern("["); err == nil {
		t.Fatal("expected error for malformed pattern")
	}
	if got := e.TokenizePattern(); got != DefaultTokenizePattern {
		t.Fatalf("pattern changed despite compile error: %q", got)
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	if _, err := New(Options{IndexMode: "BOGUS"}); !errors.Is(err, ErrInvalidIndexMode) {
		t.Fatalf("expected ErrInvalidIndexMode, got %v", err)
	}
	if _, err := New(Options{TokenizePattern: "["}); err == nil {
		t.Fatal("expected error for malformed tokenize pattern")
	}
}

func TestAstralCodePointsIndexAsSingleCharacters(t *testing.T) {
	e := newEngine(t, Options{})
	e.IndexDocument("doc-1", "a\U0001F600b") // emoji outside the BMP

	if got := e.Search("\U0001F600"); !equal(got, []string{"doc-1"}) {
		t.Fatalf("expected [doc-1] for astral rune query, got %v", got)
	}
	if got := e.Search("a\U0001F600"); !equal(got, []string{"doc-1"}) {
		t.Fatalf("expected [doc-1] for substring ending in astral rune, got %v", got)
	}
}

func TestMalformedTokenIsSkippedNotFatal(t *testing.T) {
	e := newEngine(t, Options{IndexMode: IndexModeExactWords, CaseSensitive: true})
	e.IndexDocument("doc-1", "good \xff\xfe also")

	// The invalid token contributes nothing; the rest of the document and
	// the identifier registration are unaffected.
	if got := e.Search("good"); !equal(got, []string{"doc-1"}) {
		t.Fatalf("valid tokens lost around malformed one: got %v", got)
	}
	if got := e.Search("also"); !equal(got, []string{"doc-1"}) {
		t.Fatalf("tokens after malformed one lost: got %v", got)
	}
	if got := e.Search(""); !equal(got, []string{"doc-1"}) {
		t.Fatalf("uid not registered: got %v", got)
	}
}

func TestExpand(t *testing.T) {
	cases := []struct {
		mode  IndexMode
		token string
		want  []string
	}{
		{IndexModeExactWords, "cat", []string{"cat"}},
		{IndexModePrefixes, "cat", []string{"c", "ca", "cat"}},
		{IndexModeAllSubstrings, "cat", []string{"c", "ca", "cat", "a", "at", "t"}},
		{IndexModeExactWords, "", []string{""}},
		{IndexModePrefixes, "", []string{}},
		{IndexModeAllSubstrings, "", []string{}},
	}
	for _, tc := range cases {
		got := Expand(tc.mode, tc.token)
		if !equal(got, tc.want) {
			t.Errorf("Expand(%s, %q) = %v, want %v", tc.mode, tc.token, got, tc.want)
		}
	}
}

func TestParseIndexMode(t *testing.T) {
	for _, name := range []string{"EXACT_WORDS", "PREFIXES", "ALL_SUBSTRINGS"} {
		mode, err := ParseIndexMode(name)
		if err != nil {
			t.Fatalf("ParseIndexMode(%q): %v", name, err)
		}
		if string(mode) != name {
			t.Fatalf("ParseIndexMode(%q) = %q", name, mode)
		}
	}
	if _, err := ParseIndexMode("substrings"); !errors.Is(err, ErrInvalidIndexMode) {
		t.Fatalf("expected ErrInvalidIndexMode, got %v", err)
	}
}
