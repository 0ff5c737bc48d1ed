package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/pzhine/js-worker-search/search"
)

func newProxy(t *testing.T, opts search.Options) *Proxy {
	t.Helper()
	p, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

func searchSorted(t *testing.T, p *Proxy, query string) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	uids, err := p.Search(ctx, query)
	if err != nil {
		t.Fatalf("Search(%q): %v", query, err)
	}
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

func TestProxyMatchesEngineSemantics(t *testing.T) {
	p := newProxy(t, search.Options{IndexMode: search.IndexModeExactWords})
	p.IndexDocument("A", "long road").IndexDocument("B", "long lane")

	if got := searchSorted(t, p, "long"); !equal(got, []string{"A", "B"}) {
		t.Fatalf("expected [A B], got %v", got)
	}
	if got := searchSorted(t, p, "long road"); !equal(got, []string{"A"}) {
		t.Fatalf("expected [A], got %v", got)
	}
	if got := searchSorted(t, p, ""); !equal(got, []string{"A", "B"}) {
		t.Fatalf("empty query: expected [A B], got %v", got)
	}
}

func TestIndexBeforeSearchIsOrdered(t *testing.T) {
	// An index enqueued before a search must be visible to that search:
	// the worker processes the request queue in FIFO order.
	p := newProxy(t, search.Options{IndexMode: search.IndexModeExactWords})
	for i := 0; i < 100; i++ {
		p.IndexDocument("doc", "needle")
	}
	if got := searchSorted(t, p, "needle"); !equal(got, []string{"doc"}) {
		t.Fatalf("expected [doc], got %v", got)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newProxy(t, search.Options{})

	mode, err := p.IndexMode(ctx)
	if err != nil || mode != search.IndexModeAllSubstrings {
		t.Fatalf("IndexMode = %v, %v", mode, err)
	}
	if err := p.SetIndexMode(ctx, search.IndexModePrefixes); err != nil {
		t.Fatalf("SetIndexMode: %v", err)
	}
	if mode, _ = p.IndexMode(ctx); mode != search.IndexModePrefixes {
		t.Fatalf("mode not applied: %v", mode)
	}

	if err := p.SetTokenizePattern(ctx, `[\s,]+`); err != nil {
		t.Fatalf("SetTokenizePattern: %v", err)
	}
	if pattern, _ := p.TokenizePattern(ctx); pattern != `[\s,]+` {
		t.Fatalf("pattern not applied: %q", pattern)
	}

	if err := p.SetCaseSensitive(ctx, true); err != nil {
		t.Fatalf("SetCaseSensitive: %v", err)
	}
	if cs, _ := p.CaseSensitive(ctx); !cs {
		t.Fatal("case sensitivity not applied")
	}
}

func TestSetIndexModeLockedThroughProxy(t *testing.T) {
	ctx := context.Background()
	p := newProxy(t, search.Options{})
	p.IndexDocument("doc-1", "text")

	err := p.SetIndexMode(ctx, search.IndexModeExactWords)
	if !errors.Is(err, search.ErrIndexModeLocked) {
		t.Fatalf("expected ErrIndexModeLocked, got %v", err)
	}
}

func TestConcurrentSearches(t *testing.T) {
	p := newProxy(t, search.Options{IndexMode: search.IndexModeExactWords})
	p.IndexDocument("doc-1", "alpha beta gamma")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			uids, err := p.Search(context.Background(), "beta")
			if err != nil {
				t.Errorf("Search: %v", err)
				return
			}
			if !equal(uids, []string{"doc-1"}) {
				t.Errorf("expected [doc-1], got %v", uids)
			}
		}()
	}
	wg.Wait()
}

func TestCallsAfterCloseReturnErrClosed(t *testing.T) {
	p, err := New(search.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.IndexDocument("doc-1", "text")
	p.Close()
	p.Close() // idempotent

	if _, err := p.Search(context.Background(), "text"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := p.SetCaseSensitive(context.Background(), true); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	// Fire-and-forget indexing after Close is dropped, not a panic.
	p.IndexDocument("doc-2", "more")
}

func TestContextAbandonsWaitOnly(t *testing.T) {
	p := newProxy(t, search.Options{})
	p.IndexDocument("doc-1", "text")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// The reply may win the race against the cancelled context; the only
	// wrong outcome is some other error.
	if _, err := p.Search(ctx, "text"); err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled or success, got %v", err)
	}

	// The proxy stays usable; the abandoned reply is drained internally.
	if got := searchSorted(t, p, "text"); !equal(got, []string{"doc-1"}) {
		t.Fatalf("expected [doc-1], got %v", got)
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	if _, err := New(search.Options{IndexMode: "BOGUS"}); !errors.Is(err, search.ErrInvalidIndexMode) {
		t.Fatalf("expected ErrInvalidIndexMode, got %v", err)
	}
}
