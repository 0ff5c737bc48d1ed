// Package index implements the token-to-document inverted index backing the
// search engine. It stores expanded tokens against sets of document
// identifiers and answers multi-token AND queries by incremental set
// intersection.
package index

// Inverted maps an expanded token to the set of document identifiers whose
// indexed text produced that token.
//
// Inverted is not safe for concurrent use. The engine owning it assumes a
// single logical reader/writer at a time; callers that need concurrency
// should go through worker.Proxy, which confines the whole engine to one
// goroutine.
type Inverted struct {
	tokens map[string]map[string]struct{}
}

// New creates an empty inverted index.
func New() *Inverted {
	return &Inverted{
		tokens: make(map[string]map[string]struct{}),
	}
}

// Add inserts uid into the identifier set for token, creating the set if
// absent. Adding the same (token, uid) pair twice has no additional effect.
func (ii *Inverted) Add(token, uid string) {
	set, ok := ii.tokens[token]
	if !ok {
		set = make(map[string]struct{})
		ii.tokens[token] = set
	}
	set[uid] = struct{}{}
}

// Search returns the identifiers present under every token in tokens.
//
// The result is seeded from the first token's set and narrowed one token at
// a time, so the cost is bounded by the sizes of the per-token sets rather
// than their product. A token absent from the index collapses the result to
// empty. An empty token slice returns an empty result at this layer; the
// "empty query matches everything" behavior belongs to the engine, which
// never forwards a zero-token query here with that meaning.
//
// Output order is unspecified.
func (ii *Inverted) Search(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}

	candidates := make(map[string]struct{}, len(ii.tokens[tokens[0]]))
	for uid := range ii.tokens[tokens[0]] {
		candidates[uid] = struct{}{}
	}

	for _, token := range tokens[1:] {
		if len(candidates) == 0 {
			return nil
		}
		set := ii.tokens[token]
		for uid := range candidates {
			if _, ok := set[uid]; !ok {
				delete(candidates, uid)
			}
		}
	}

	result := make([]string, 0, len(candidates))
	for uid := range candidates {
		result = append(result, uid)
	}
	return result
}

// Len returns the number of distinct expanded tokens stored.
func (ii *Inverted) Len() int {
	return len(ii.tokens)
}

// Postings returns the number of identifiers stored under token.
func (ii *Inverted) Postings(token string) int {
	return len(ii.tokens[token])
}
