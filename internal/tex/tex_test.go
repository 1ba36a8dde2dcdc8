package tex

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coursekit/coursekit/internal/buildlog"
)

// countingBackend renders deterministically and counts calls.
type countingBackend struct {
	mu    sync.Mutex
	calls int
	fail  bool

	lastDisplay bool
}

func (b *countingBackend) Render(_ context.Context, code string, display bool) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	b.lastDisplay = display
	if b.fail {
		return "", errors.New("render failed")
	}
	return fmt.Sprintf(`<span class="katex">%s</span>`, code), nil
}

func (b *countingBackend) Close() error { return nil }

func (b *countingBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func newTestService(t *testing.T, backend Backend) *Service {
	t.Helper()
	return NewService(buildlog.NewNop(),
		WithBackend(backend),
		WithCachePath(filepath.Join(t.TempDir(), "tex.json")),
	)
}

func TestPlaceholderAndFill(t *testing.T) {
	backend := &countingBackend{}
	s := newTestService(t, backend)

	p1 := s.Placeholder("x^2", true)
	p2 := s.Placeholder("y^2", true)
	if !strings.HasPrefix(p1, "XEQUATIONX") || p1 == p2 {
		t.Fatalf("placeholders not unique tokens: %q, %q", p1, p2)
	}

	doc := "<p>" + p1 + " and " + p2 + "</p>"
	out, err := s.Fill(context.Background(), doc)
	if err != nil {
		t.Fatalf("Fill() error = %v", err)
	}
	want := `<p><span class="katex">x^2</span> and <span class="katex">y^2</span></p>`
	if out != want {
		t.Errorf("Fill() = %q, want %q", out, want)
	}
	if backend.callCount() != 2 {
		t.Errorf("backend calls = %d, want 2", backend.callCount())
	}
}

func TestPlaceholderDisplayMode(t *testing.T) {
	backend := &countingBackend{}
	s := newTestService(t, backend)

	token := s.Placeholder("x^2", false)
	if _, err := s.Fill(context.Background(), token); err != nil {
		t.Fatal(err)
	}
	if !backend.lastDisplay {
		t.Error("block placeholder did not render in display mode")
	}
}

func TestFillCachesAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tex.json")
	backend := &countingBackend{}

	s := NewService(buildlog.NewNop(), WithBackend(backend), WithCachePath(path))
	token := s.Placeholder("x^2", true)
	if _, err := s.Fill(context.Background(), token); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// A second service loads the persisted cache and answers synchronously.
	s2 := NewService(buildlog.NewNop(), WithBackend(backend), WithCachePath(path))
	if got := s2.Placeholder("x^2", true); got != `<span class="katex">x^2</span>` {
		t.Errorf("Placeholder() after reload = %q, want cached markup", got)
	}
	if backend.callCount() != 1 {
		t.Errorf("backend calls = %d, want 1", backend.callCount())
	}
}

func TestFillRepeatedEquationRendersOnce(t *testing.T) {
	backend := &countingBackend{}
	s := newTestService(t, backend)

	t1 := s.Placeholder("x^2", true)
	t2 := s.Placeholder("x^2", true)
	if _, err := s.Fill(context.Background(), t1+" "+t2); err != nil {
		t.Fatal(err)
	}
	if backend.callCount() != 1 {
		t.Errorf("backend calls = %d, want 1", backend.callCount())
	}
}

func TestFillBackendFailure(t *testing.T) {
	log := buildlog.NewNop()
	s := NewService(log,
		WithBackend(&countingBackend{fail: true}),
		WithCachePath(filepath.Join(t.TempDir(), "tex.json")),
	)

	token := s.Placeholder("x^2", true)
	out, err := s.Fill(context.Background(), "a "+token+" b")
	if err != nil {
		t.Fatalf("Fill() error = %v", err)
	}
	if out != "a  b" {
		t.Errorf("Fill() = %q, want empty substitution", out)
	}
	if log.Warnings() != 1 {
		t.Errorf("warnings = %d, want 1", log.Warnings())
	}
}

func TestFillCancelled(t *testing.T) {
	s := newTestService(t, &countingBackend{})
	token := s.Placeholder("x^2", true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Fill(ctx, token); !errors.Is(err, context.Canceled) {
		t.Errorf("Fill() error = %v, want context.Canceled", err)
	}
}

func TestStoreKeyDecodesEntities(t *testing.T) {
	if storeKey("a &lt; b", true) != storeKey("a < b", true) {
		t.Error("entity-encoded and plain equations should share a cache key")
	}
	if storeKey("x", true) == storeKey("x", false) {
		t.Error("inline flag must be part of the cache key")
	}
}

func TestFlushThrottle(t *testing.T) {
	backend := &countingBackend{}
	s := newTestService(t, backend)

	clock := time.Unix(1000, 0)
	s.now = func() time.Time { return clock }

	token := s.Placeholder("x^2", true)
	if _, err := s.Fill(context.Background(), token); err != nil {
		t.Fatal(err)
	}

	// First flush at time zero sees a zero lastFlush far in the past.
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}
	if s.dirty {
		t.Error("flush did not clear the dirty flag")
	}

	token2 := s.Placeholder("y^2", true)
	if _, err := s.Fill(context.Background(), token2); err != nil {
		t.Fatal(err)
	}
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}
	if !s.dirty {
		t.Error("throttled flush should leave the store dirty")
	}

	clock = clock.Add(2 * time.Second)
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}
	if s.dirty {
		t.Error("flush after the throttle window did not write")
	}
}
