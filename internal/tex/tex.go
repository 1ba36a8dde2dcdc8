// Package tex converts LaTeX equations to presentational markup via a
// placeholder/substitute-later protocol: the synchronous render pass asks for
// placeholders, and a second pass over the finished HTML resolves them
// through the (slow, lazily initialized) rendering backend. Resolved markup
// is cached across process restarts.
package tex

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coursekit/coursekit/internal/buildlog"
	"github.com/coursekit/coursekit/internal/fileutil"
)

// placeholderPattern matches tokens emitted by Placeholder.
var placeholderPattern = regexp.MustCompile(`XEQUATIONX[0-9]+XEQUATIONX`)

// Backend renders one TeX expression to markup. display selects display
// (block) layout over inline layout.
type Backend interface {
	Render(ctx context.Context, code string, display bool) (string, error)
	Close() error
}

type pendingEquation struct {
	code   string
	inline bool
}

// Service is the equation placeholder service. One Service is constructed
// per compilation run and shared by all concurrently compiled steps.
type Service struct {
	mu      sync.Mutex
	store   map[string]string
	pending map[string]pendingEquation
	count   int
	dirty   bool

	path        string
	backend     Backend
	makeBackend func() Backend
	log         *buildlog.Logger

	lastFlush time.Time
	throttle  time.Duration
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithBackend injects an equation rendering backend (used by tests).
func WithBackend(b Backend) Option {
	return func(s *Service) { s.backend = b }
}

// WithCachePath overrides the persistent cache location.
func WithCachePath(path string) Option {
	return func(s *Service) { s.path = path }
}

// NewService creates a Service, loading the persisted equation cache if one
// exists. The default backend renders KaTeX in headless Chrome and is only
// started when an uncached equation is actually encountered.
func NewService(log *buildlog.Logger, opts ...Option) *Service {
	s := &Service{
		store:       map[string]string{},
		pending:     map[string]pendingEquation{},
		log:         log,
		throttle:    time.Second,
		now:         time.Now,
		makeBackend: func() Backend { return newChromeBackend(log) },
	}
	if dir, err := os.UserCacheDir(); err == nil {
		s.path = filepath.Join(dir, "coursekit", "tex.json")
	}
	for _, opt := range opts {
		opt(s)
	}
	s.loadStore()
	return s
}

// storeKey is decoded code plus the inline flag, matching the persisted
// cache format.
func storeKey(code string, inline bool) string {
	return html.UnescapeString(code) + strconv.FormatBool(inline)
}

// Placeholder returns cached markup for the equation if it was resolved in
// a previous run, or a unique placeholder token otherwise. Safe for
// concurrent use; purely synchronous.
func (s *Service) Placeholder(code string, inline bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if markup, ok := s.store[storeKey(code, inline)]; ok {
		return markup
	}

	token := fmt.Sprintf("XEQUATIONX%dXEQUATIONX", s.count)
	s.count++
	s.pending[token] = pendingEquation{code: code, inline: inline}
	return token
}

// Fill substitutes every placeholder token in doc with rendered markup,
// resolving uncached equations through the backend. Backend failures warn
// and substitute empty markup so a single bad equation never aborts the
// document.
func (s *Service) Fill(ctx context.Context, doc string) (string, error) {
	tokens := placeholderPattern.FindAllString(doc, -1)
	for _, token := range tokens {
		if err := ctx.Err(); err != nil {
			return doc, err
		}

		s.mu.Lock()
		eqn, ok := s.pending[token]
		s.mu.Unlock()
		if !ok {
			continue
		}

		markup, err := s.resolve(ctx, eqn)
		if err != nil {
			s.log.Warnf("equation render failed at %q: %v", eqn.code, err)
			markup = ""
		}
		doc = strings.Replace(doc, token, markup, 1)
	}
	return doc, nil
}

// resolve renders one equation, consulting and updating the persistent
// store. Idempotent overwrite races between concurrent callers are
// harmless: identical input renders identical output.
func (s *Service) resolve(ctx context.Context, eqn pendingEquation) (string, error) {
	key := storeKey(eqn.code, eqn.inline)

	s.mu.Lock()
	if markup, ok := s.store[key]; ok {
		s.mu.Unlock()
		return markup, nil
	}
	if s.backend == nil {
		s.backend = s.makeBackend()
	}
	backend := s.backend
	s.mu.Unlock()

	markup, err := backend.Render(ctx, eqn.code, !eqn.inline)
	if err != nil {
		markup = ""
	}

	s.mu.Lock()
	s.store[key] = markup
	s.dirty = true
	s.mu.Unlock()
	return markup, err
}

// Flush persists the equation cache if it changed. Writes are throttled so
// that many rapid compilations collapse into one disk write; use Close for
// an unconditional final flush.
func (s *Service) Flush() error {
	s.mu.Lock()
	if !s.dirty || s.path == "" || s.now().Sub(s.lastFlush) < s.throttle {
		s.mu.Unlock()
		return nil
	}
	s.lastFlush = s.now()
	s.mu.Unlock()
	return s.writeStore()
}

// Close flushes the cache unconditionally and shuts down the backend.
func (s *Service) Close() error {
	var err error
	s.mu.Lock()
	dirty, backend := s.dirty, s.backend
	s.backend = nil
	s.mu.Unlock()

	if dirty && s.path != "" {
		err = s.writeStore()
	}
	if backend != nil {
		if cerr := backend.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (s *Service) loadStore() {
	if s.path == "" {
		return
	}
	data, err := os.ReadFile(s.path) // #nosec G304 -- fixed user cache path
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := json.Unmarshal(data, &s.store); err != nil {
		s.log.Warnf("discarding corrupt equation cache %s: %v", s.path, err)
		s.store = map[string]string{}
	}
}

func (s *Service) writeStore() error {
	s.mu.Lock()
	data, err := json.Marshal(s.store)
	s.dirty = false
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encoding equation cache: %w", err)
	}
	return fileutil.WriteAtomic(s.path, data, 0o600)
}
