package tex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/coursekit/coursekit/internal/buildlog"
)

// Sentinel errors for the headless Chrome backend.
var (
	ErrBrowserConnect = errors.New("failed to connect to browser")
	ErrPageCreate     = errors.New("failed to create browser page")
	ErrEquationRender = errors.New("equation rendering failed")
)

const renderTimeout = 30 * time.Second

// renderPage is a minimal document that loads KaTeX and exposes a render
// function. Equations are rendered by evaluating katex.renderToString in
// the page, so no per-equation navigation is needed.
const renderPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/katex@0.16.11/dist/katex.min.css">
<script src="https://cdn.jsdelivr.net/npm/katex@0.16.11/dist/katex.min.js"></script>
</head>
<body></body>
</html>`

// chromeBackend renders TeX with KaTeX inside a single headless Chrome page
// driven by go-rod. The browser is launched lazily on first render and
// reused for every equation of the run.
type chromeBackend struct {
	browser *rod.Browser
	page    *rod.Page
	log     *buildlog.Logger
}

var _ Backend = (*chromeBackend)(nil)

func newChromeBackend(log *buildlog.Logger) *chromeBackend {
	return &chromeBackend{log: log}
}

// ensurePage lazily launches the browser and loads the KaTeX render page.
func (b *chromeBackend) ensurePage() error {
	if b.page != nil {
		return nil
	}

	l := launcher.New()

	// Use pre-installed browser if specified (Docker/containerized environments)
	if bin := os.Getenv("ROD_BROWSER_BIN"); bin != "" {
		l = l.Bin(bin)
	}

	// NoSandbox required for CI and containerized environments
	if os.Getenv("CI") == "true" || os.Getenv("ROD_BROWSER_BIN") != "" {
		l = l.NoSandbox(true)
	}

	u, err := l.Launch()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}
	b.browser = browser

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPageCreate, err)
	}
	if err := page.SetDocumentContent(renderPage); err != nil {
		return fmt.Errorf("%w: %v", ErrPageCreate, err)
	}
	if err := page.Timeout(renderTimeout).WaitLoad(); err != nil {
		return fmt.Errorf("%w: %v", ErrPageCreate, err)
	}
	b.page = page
	return nil
}

// Render evaluates katex.renderToString for one equation and returns the
// resulting markup.
func (b *chromeBackend) Render(ctx context.Context, code string, display bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := b.ensurePage(); err != nil {
		return "", err
	}

	timeout := renderTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return "", context.DeadlineExceeded
		}
	}

	result, err := b.page.Timeout(timeout).Eval(
		`(code, display) => katex.renderToString(code, {displayMode: display, throwOnError: true})`,
		code, display,
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEquationRender, err)
	}
	return result.Value.Str(), nil
}

// Close shuts down the browser.
func (b *chromeBackend) Close() error {
	b.page = nil
	if b.browser != nil {
		err := b.browser.Close()
		b.browser = nil
		return err
	}
	return nil
}
