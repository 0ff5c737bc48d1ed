// Package search provides an in-memory full-text substring search engine.
// Documents are indexed under caller-supplied identifiers; the text of each
// document is sanitized, tokenized, and expanded into index keys according to
// the configured IndexMode. Queries are resolved as a logical AND over all
// query tokens.
//
// The engine is synchronous and not safe for concurrent use; one engine
// belongs to one goroutine. The worker subpackage wraps an engine in a
// message-passing proxy with the same contract for use from concurrent
// callers.
package search

import (
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pzhine/js-worker-search/search/index"
)

var (
	// ErrIndexModeLocked is returned by SetIndexMode once any document has
	// been indexed. The index mode determines which keys exist in the
	// inverted index, so changing it mid-corpus would silently corrupt
	// search results.
	ErrIndexModeLocked = errors.New("index mode cannot be changed after documents have been indexed")

	// ErrInvalidIndexMode is returned for a mode outside the defined set.
	ErrInvalidIndexMode = errors.New("invalid index mode")
)

// DefaultTokenizePattern splits text on runs of whitespace.
const DefaultTokenizePattern = `\s+`

// Options configures a new Engine. The zero value selects the defaults:
// ALL_SUBSTRINGS mode, whitespace tokenization, case-insensitive matching.
type Options struct {
	// IndexMode is the token-expansion strategy. Empty means
	// IndexModeAllSubstrings.
	IndexMode IndexMode

	// TokenizePattern is a regular expression used as the split delimiter
	// when tokenizing text. Empty means DefaultTokenizePattern.
	TokenizePattern string

	// CaseSensitive disables the lowercasing normally applied to both
	// indexed text and queries.
	CaseSensitive bool
}

// Engine indexes documents and answers multi-token AND queries over them.
// State only grows: there is no way to remove a document or a token once
// indexed. Re-indexing an identifier merges new tokens into its entry.
type Engine struct {
	mode          IndexMode
	pattern       *regexp.Regexp
	caseSensitive bool

	// hasIndexedAny gates SetIndexMode. It is an explicit flag rather than
	// a check on uids being non-empty so the lock is observable even if the
	// identifier bookkeeping changes.
	hasIndexedAny bool

	uids     map[string]struct{}
	uidOrder []string

	inverted *index.Inverted
	logger   *slog.Logger
}

// New creates an Engine from opts. It fails only on an invalid index mode or
// a tokenize pattern that does not compile.
func New(opts Options) (*Engine, error) {
	mode := opts.IndexMode
	if mode == "" {
		mode = IndexModeAllSubstrings
	}
	if !mode.Valid() {
		return nil, ErrInvalidIndexMode
	}

	patternSrc := opts.TokenizePattern
	if patternSrc == "" {
		patternSrc = DefaultTokenizePattern
	}
	pattern, err := regexp.Compile(patternSrc)
	if err != nil {
		return nil, err
	}

	return &Engine{
		mode:          mode,
		pattern:       pattern,
		caseSensitive: opts.CaseSensitive,
		uids:          make(map[string]struct{}),
		inverted:      index.New(),
		logger:        slog.Default().With("component", "search-engine"),
	}, nil
}

// IndexMode returns the active token-expansion mode.
func (e *Engine) IndexMode() IndexMode {
	return e.mode
}

// SetIndexMode changes the token-expansion mode. It fails with
// ErrIndexModeLocked once any document has been indexed, and with
// ErrInvalidIndexMode for a mode outside the defined set.
func (e *Engine) SetIndexMode(mode IndexMode) error {
	if e.hasIndexedAny {
		return ErrIndexModeLocked
	}
	if !mode.Valid() {
		return ErrInvalidIndexMode
	}
	e.mode = mode
	return nil
}

// TokenizePattern returns the regular expression source used to split text
// into tokens.
func (e *Engine) TokenizePattern() string {
	return e.pattern.String()
}

// SetTokenizePattern replaces the tokenize delimiter. The pattern is compiled
// eagerly so a malformed expression fails here rather than on the next index
// or search call. Takes effect on the next tokenize; already-indexed tokens
// are unaffected.
func (e *Engine) SetTokenizePattern(pattern string) error {
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.pattern = compiled
	return nil
}

// CaseSensitive reports whether case folding is disabled.
func (e *Engine) CaseSensitive() bool {
	return e.caseSensitive
}

// SetCaseSensitive toggles case folding. Takes effect on the next sanitize;
// already-indexed tokens are unaffected.
func (e *Engine) SetCaseSensitive(caseSensitive bool) {
	e.caseSensitive = caseSensitive
}

// IndexDocument records uid as a known identifier and indexes every expanded
// token of text under it. It never fails: empty or whitespace-only text
// contributes no tokens but still registers the identifier, and a token that
// is not valid UTF-8 is logged and skipped without aborting the rest of the
// document. Returns the engine for call chaining.
func (e *Engine) IndexDocument(uid, text string) *Engine {
	e.hasIndexedAny = true

	if _, known := e.uids[uid]; !known {
		e.uids[uid] = struct{}{}
		e.uidOrder = append(e.uidOrder, uid)
	}

	for _, token := range e.tokenize(e.sanitize(text)) {
		if !utf8.ValidString(token) {
			e.logger.Warn("skipping malformed token",
				"uid", uid,
				"token_bytes", len(token),
			)
			continue
		}
		for _, expanded := range Expand(e.mode, token) {
			e.inverted.Add(expanded, uid)
		}
	}
	return e
}

// Search returns the identifiers of all documents matching query.
//
// An empty query returns every known identifier, in the order the
// identifiers were first indexed. A non-empty query is sanitized and
// tokenized exactly like indexed text (query tokens are never expanded) and
// resolved as the intersection of the per-token identifier sets; note that a
// query which tokenizes to nothing, such as pure whitespace, is answered by
// the inverted index and therefore matches no documents. Result order for
// non-empty queries is unspecified.
func (e *Engine) Search(query string) []string {
	if query == "" {
		all := make([]string, len(e.uidOrder))
		copy(all, e.uidOrder)
		return all
	}
	return e.inverted.Search(e.tokenize(e.sanitize(query)))
}

// DocumentCount returns the number of distinct identifiers ever indexed.
func (e *Engine) DocumentCount() int {
	return len(e.uids)
}

// TokenCount returns the number of distinct expanded tokens in the index.
func (e *Engine) TokenCount() int {
	return e.inverted.Len()
}

// sanitize trims surrounding whitespace and, unless case-sensitive mode is
// active, lowercases the text.
func (e *Engine) sanitize(text string) string {
	text = strings.TrimSpace(text)
	if !e.caseSensitive {
		text = strings.ToLower(text)
	}
	return text
}

// tokenize splits sanitized text on the configured delimiter pattern,
// discarding empty tokens.
func (e *Engine) tokenize(text string) []string {
	if text == "" {
		return nil
	}
	parts := e.pattern.Split(text, -1)
	tokens := parts[:0]
	for _, part := range parts {
		if part != "" {
			tokens = append(tokens, part)
		}
	}
	return tokens
}
