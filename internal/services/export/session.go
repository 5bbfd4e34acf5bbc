// -----------------------------------------------------------------------
// Browser Session - ChromeDP browser lifecycle for export runs
// -----------------------------------------------------------------------

package export

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/traho/internal/common"
)

// Credentials are the login inputs for a run
type Credentials struct {
	TargetURL string
	Username  string
	Password  string
}

// exportSession is the browser-facing surface the run controller drives.
// The chromedp implementation lives in this file; tests substitute a stub.
type exportSession interface {
	Login(ctx context.Context, creds Credentials) error
	OpenExportScreen(ctx context.Context) error
	ExportInvoice(ctx context.Context, invoice string) error
	Close()
}

// Session owns one Chrome instance for the duration of an export run
type Session struct {
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	allocatorCancel context.CancelFunc
	selectors       Selectors
	config          common.BotConfig
	logger          arbor.ILogger
}

// NewSession launches Chrome, verifies it responds, and routes downloads
// into downloadDir
func NewSession(config common.BotConfig, selectors Selectors, downloadDir string, logger arbor.ILogger) (*Session, error) {
	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.Flag("start-maximized", true),
	)

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	// Startup test with its own timeout so a broken Chrome install fails fast
	testCtx, testCancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer testCancel()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("browser failed startup test: %w", err)
	}

	// Route downloads into the run's capture directory
	if err := chromedp.Run(testCtx,
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(downloadDir).
			WithEventsEnabled(true),
	); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("failed to set download path: %w", err)
	}

	logger.Debug().
		Str("download_dir", downloadDir).
		Bool("headless", config.Headless).
		Msg("Browser session started")

	return &Session{
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		allocatorCancel: allocatorCancel,
		selectors:       selectors,
		config:          config,
		logger:          logger,
	}, nil
}

// run executes actions against the browser under the caller's deadline.
// The caller context carries cancellation; the browser context carries
// the connection.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.browserCtx, timeout)
	defer cancel()

	// Propagate run cancellation into the chromedp context
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// waitOverlayGone polls until no loading overlay is visible.
// The tolerated outcome of an exhausted budget is to proceed anyway;
// the next interaction fails with a better error if the app is stuck.
func (s *Session) waitOverlayGone(ctx context.Context) {
	check := func(ctx context.Context) (bool, error) {
		var visible bool
		script := fmt.Sprintf(`(function() {
			var els = document.querySelectorAll(%q);
			for (var i = 0; i < els.length; i++) {
				var st = window.getComputedStyle(els[i]);
				if (st.display !== 'none' && st.visibility !== 'hidden' && els[i].offsetParent !== null) {
					return true;
				}
			}
			return false;
		})()`, s.selectors.LoadingOverlay)

		if err := s.run(ctx, s.config.ElementTimeout, chromedp.Evaluate(script, &visible)); err != nil {
			return false, err
		}
		return !visible, nil
	}

	interval := 500 * time.Millisecond
	attempts := int(s.config.OverlayTimeout / interval)
	if attempts < 1 {
		attempts = 1
	}

	if err := BoundedPoll(ctx, interval, attempts, check); err != nil {
		s.logger.Debug().Err(err).Msg("Loading overlay still present, continuing")
	}
}

// Close tears down the browser and its allocator
func (s *Session) Close() {
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocatorCancel != nil {
		s.allocatorCancel()
	}
}
