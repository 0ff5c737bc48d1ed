// Package worker runs a search.Engine confined to a dedicated goroutine and
// exposes the same indexing and search contract through message passing.
//
// The engine itself is single-threaded; the proxy exists so concurrent
// callers (HTTP handlers, queue consumers) can share one engine without the
// engine needing locks. Every call is serialized into a request message with
// a unique per-call correlation id, executed in order by the worker
// goroutine, and its reply is matched back to the caller through a pending
// map drained in FIFO completion order. The proxy is a transparent front:
// results are exactly those of the wrapped engine.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pzhine/js-worker-search/search"
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("search worker is closed")

// requestBuffer bounds how many calls may queue before senders block.
const requestBuffer = 256

type opKind int

const (
	opIndexDocument opKind = iota
	opSearch
	opSnapshotConfig
	opSetIndexMode
	opSetTokenizePattern
	opSetCaseSensitive
)

// request is the wire format of one call into the worker goroutine. The id
// is the correlation token used to route the reply; fire-and-forget
// operations carry id 0 and produce no reply.
type request struct {
	id            uint64
	op            opKind
	uid           string
	text          string
	query         string
	mode          search.IndexMode
	pattern       string
	caseSensitive bool
}

// response carries a reply back out of the worker goroutine, tagged with the
// correlation id of the request that produced it.
type response struct {
	id            uint64
	uids          []string
	mode          search.IndexMode
	pattern       string
	caseSensitive bool
	docCount      int
	tokenCount    int
	err           error
}

// Snapshot is a point-in-time view of the engine's configuration and index
// sizes, taken in a single worker pass.
type Snapshot struct {
	IndexMode       search.IndexMode
	TokenizePattern string
	CaseSensitive   bool
	DocumentCount   int
	TokenCount      int
}

// Proxy owns a search.Engine running in its own goroutine and provides the
// engine's contract to concurrent callers. A Proxy must be created with New
// and released with Close.
type Proxy struct {
	requests  chan request
	responses chan response

	// closeMu is held shared by in-flight senders and exclusively by Close,
	// so the request channel is never closed mid-send.
	closeMu sync.RWMutex
	closed  bool

	pendingMu sync.Mutex
	pending   map[uint64]chan response
	nextID    atomic.Uint64

	workerDone   chan struct{}
	dispatchDone chan struct{}
	logger       *slog.Logger
}

// New creates the engine from opts and starts the worker and reply-dispatch
// goroutines.
func New(opts search.Options) (*Proxy, error) {
	engine, err := search.New(opts)
	if err != nil {
		return nil, err
	}
	p := &Proxy{
		requests:     make(chan request, requestBuffer),
		responses:    make(chan response, requestBuffer),
		pending:      make(map[uint64]chan response),
		workerDone:   make(chan struct{}),
		dispatchDone: make(chan struct{}),
		logger:       slog.Default().With("component", "search-worker"),
	}
	go p.runWorker(engine)
	go p.runDispatch()
	return p, nil
}

// runWorker executes requests against the engine, one at a time, in arrival
// order. Once an operation starts it runs to completion; there is no
// cancellation.
func (p *Proxy) runWorker(engine *search.Engine) {
	defer close(p.workerDone)
	defer close(p.responses)
	for req := range p.requests {
		switch req.op {
		case opIndexDocument:
			engine.IndexDocument(req.uid, req.text)
			continue // no reply expected

		case opSearch:
			p.responses <- response{id: req.id, uids: engine.Search(req.query)}

		case opSnapshotConfig:
			p.responses <- response{
				id:            req.id,
				mode:          engine.IndexMode(),
				pattern:       engine.TokenizePattern(),
				caseSensitive: engine.CaseSensitive(),
				docCount:      engine.DocumentCount(),
				tokenCount:    engine.TokenCount(),
			}

		case opSetIndexMode:
			p.responses <- response{id: req.id, err: engine.SetIndexMode(req.mode)}

		case opSetTokenizePattern:
			p.responses <- response{id: req.id, err: engine.SetTokenizePattern(req.pattern)}

		case opSetCaseSensitive:
			engine.SetCaseSensitive(req.caseSensitive)
			p.responses <- response{id: req.id}
		}
	}
}

// runDispatch routes replies to their pending handles by correlation id.
// The worker processes requests in order, so replies arrive and are drained
// in FIFO order relative to other calls on this proxy.
func (p *Proxy) runDispatch() {
	defer close(p.dispatchDone)
	for resp := range p.responses {
		p.pendingMu.Lock()
		handle, ok := p.pending[resp.id]
		delete(p.pending, resp.id)
		p.pendingMu.Unlock()
		if !ok {
			p.logger.Warn("reply with no pending call", "correlation_id", resp.id)
			continue
		}
		handle <- resp
	}
	// Fail anything still pending; the worker is gone.
	p.pendingMu.Lock()
	for id, handle := range p.pending {
		delete(p.pending, id)
		handle <- response{id: id, err: ErrClosed}
	}
	p.pendingMu.Unlock()
}

// call registers a pending handle, enqueues the request, and waits for the
// correlated reply. The operation always runs to completion once enqueued;
// ctx only abandons the wait.
func (p *Proxy) call(ctx context.Context, req request) (response, error) {
	p.closeMu.RLock()
	if p.closed {
		p.closeMu.RUnlock()
		return response{}, ErrClosed
	}

	req.id = p.nextID.Add(1)
	handle := make(chan response, 1)
	p.pendingMu.Lock()
	p.pending[req.id] = handle
	p.pendingMu.Unlock()

	p.requests <- req
	p.closeMu.RUnlock()

	select {
	case resp := <-handle:
		return resp, resp.err
	case <-ctx.Done():
		// Leave the handle registered; the dispatcher drains the eventual
		// reply into the buffered channel.
		return response{}, ctx.Err()
	}
}

// IndexDocument enqueues a document for indexing and returns the proxy for
// chaining. The call is fire-and-forget: indexing never fails on well-formed
// input, so no reply is produced. Requests enqueued before a Search are
// indexed before that search runs.
func (p *Proxy) IndexDocument(uid, text string) *Proxy {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed {
		p.logger.Warn("index request dropped, worker closed", "uid", uid)
		return p
	}
	p.requests <- request{op: opIndexDocument, uid: uid, text: text}
	return p
}

// Search resolves query against the engine. Same semantics as
// search.Engine.Search.
func (p *Proxy) Search(ctx context.Context, query string) ([]string, error) {
	resp, err := p.call(ctx, request{op: opSearch, query: query})
	if err != nil {
		return nil, err
	}
	return resp.uids, nil
}

// Snapshot returns the engine's configuration and index sizes as one
// consistent view.
func (p *Proxy) Snapshot(ctx context.Context) (Snapshot, error) {
	resp, err := p.call(ctx, request{op: opSnapshotConfig})
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		IndexMode:       resp.mode,
		TokenizePattern: resp.pattern,
		CaseSensitive:   resp.caseSensitive,
		DocumentCount:   resp.docCount,
		TokenCount:      resp.tokenCount,
	}, nil
}

// IndexMode returns the engine's active index mode.
func (p *Proxy) IndexMode(ctx context.Context) (search.IndexMode, error) {
	resp, err := p.call(ctx, request{op: opSnapshotConfig})
	return resp.mode, err
}

// SetIndexMode changes the engine's index mode. Fails with
// search.ErrIndexModeLocked once any document has been indexed.
func (p *Proxy) SetIndexMode(ctx context.Context, mode search.IndexMode) error {
	_, err := p.call(ctx, request{op: opSetIndexMode, mode: mode})
	return err
}

// TokenizePattern returns the engine's tokenize delimiter pattern.
func (p *Proxy) TokenizePattern(ctx context.Context) (string, error) {
	resp, err := p.call(ctx, request{op: opSnapshotConfig})
	return resp.pattern, err
}

// SetTokenizePattern replaces the engine's tokenize delimiter pattern.
func (p *Proxy) SetTokenizePattern(ctx context.Context, pattern string) error {
	_, err := p.call(ctx, request{op: opSetTokenizePattern, pattern: pattern})
	return err
}

// CaseSensitive reports whether the engine matches case-sensitively.
func (p *Proxy) CaseSensitive(ctx context.Context) (bool, error) {
	resp, err := p.call(ctx, request{op: opSnapshotConfig})
	return resp.caseSensitive, err
}

// SetCaseSensitive toggles the engine's case sensitivity.
func (p *Proxy) SetCaseSensitive(ctx context.Context, caseSensitive bool) error {
	_, err := p.call(ctx, request{op: opSetCaseSensitive, caseSensitive: caseSensitive})
	return err
}

// Close stops accepting calls, lets the worker drain everything already
// enqueued, and waits for both goroutines to exit. Calls made after Close
// return ErrClosed; Close is idempotent.
func (p *Proxy) Close() {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return
	}
	p.closed = true
	close(p.requests)
	p.closeMu.Unlock()

	<-p.workerDone
	<-p.dispatchDone
}
