// -----------------------------------------------------------------------
// Selectors - Per-stage UI selector strategies and fallback chains
// -----------------------------------------------------------------------

package export

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
)

// Selectors groups the UI selectors the engine drives, one strategy per
// stage. Tests and deployments against reskinned tenants can override
// individual stages without touching the engine.
type Selectors struct {
	// Login stage
	LoginEmail    string // Email / account field
	LoginPassword string // Password field
	LoginSubmit   string // Next / Sign in / Stay signed in confirm button

	// Navigation stage
	FavoritesGroup string // Favorites grouping in the navigation pane
	ExportMenuItem string // "Export Invoice (Bulk)" menu entry

	// Per-invoice stage
	ReportButton  string // Opens the report pane
	PurchaseForm  string // Purchase order form marker, confirms the pane rendered
	InvoiceInput  string // Candidate invoice number inputs, filtered by visibility
	ChangeButton  string // "Change" in the report parameter flow
	ApplyButton   string // "Apply" in the report parameter flow
	ConfirmButton string // "OK" in the report parameter flow

	// Save dialog stage
	FileNameInput string // File name field in the save dialog
	SaveConfirm   string // OK button in the save dialog

	// Overlays blocking interaction while the app loads
	LoadingOverlay string

	// Close controls for announcement popups shown after login, tried
	// in order with all failures tolerated
	PopupClose []string
}

// DefaultSelectors returns the selector set for the stock invoice screen
func DefaultSelectors() Selectors {
	return Selectors{
		LoginEmail:    `input[type="email"], input[name="loginfmt"]`,
		LoginPassword: `input[type="password"], input[name="passwd"]`,
		LoginSubmit:   `#idSIButton9`,

		FavoritesGroup: `//div[@role='treeitem'][.//*[text()='Favorites']]`,
		ExportMenuItem: `//a[contains(., 'Export Invoice (Bulk)')]`,

		ReportButton:  `//button[.//span[text()='Report']]`,
		PurchaseForm:  `//span[contains(text(), 'Purchase order form')]`,
		InvoiceInput:  `input[role="textbox"]`,
		ChangeButton:  `//button[.//span[text()='Change']]`,
		ApplyButton:   `//button[.//span[text()='Apply']]`,
		ConfirmButton: `//button[.//span[text()='OK']]`,

		FileNameInput: `//input[contains(@name, 'FileName')]`,
		SaveConfirm:   `//button[.//span[text()='OK']]`,

		LoadingOverlay: `.modalBackground, .sys-loading-overlay`,

		PopupClose: []string{
			`//button[@aria-label='Close']`,
			`//button[.//span[text()='Close']]`,
			`//span[contains(@class, 'dialog-close')]`,
		},
	}
}

// Step is one candidate in a fallback chain
type Step struct {
	Name    string
	Action  chromedp.Action
	Timeout time.Duration
}

// Chain is an ordered list of candidate actions for one UI stage.
// Candidates run in order and the first success wins; the chain fails
// only when every candidate has failed.
type Chain struct {
	Name  string
	Steps []Step
}

// Run executes the chain against the browser context
func (c Chain) Run(ctx context.Context, logger arbor.ILogger) error {
	if len(c.Steps) == 0 {
		return fmt.Errorf("chain %s has no steps", c.Name)
	}

	var lastErr error
	for _, step := range c.Steps {
		stepCtx := ctx
		cancel := context.CancelFunc(func() {})
		if step.Timeout > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		}

		err := chromedp.Run(stepCtx, step.Action)
		cancel()

		if err == nil {
			if logger != nil {
				logger.Debug().
					Str("chain", c.Name).
					Str("step", step.Name).
					Msg("Chain step succeeded")
			}
			return nil
		}

		// A cancelled run must not fall through to the next candidate
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if logger != nil {
			logger.Debug().
				Err(err).
				Str("chain", c.Name).
				Str("step", step.Name).
				Msg("Chain step failed, trying next candidate")
		}
		lastErr = err
	}

	return fmt.Errorf("chain %s failed after %d candidates: %w", c.Name, len(c.Steps), lastErr)
}

// forceClick clicks an element via script, bypassing overlay hit testing.
// Used as the last candidate when a dialog renders behind a transparent
// modal layer the normal click cannot reach.
func forceClick(xpath string) chromedp.Action {
	script := fmt.Sprintf(`(function() {
		var r = document.evaluate(%q, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null);
		var el = r.singleNodeValue;
		if (!el) { return false; }
		el.click();
		return true;
	})()`, xpath)

	return chromedp.ActionFunc(func(ctx context.Context) error {
		var clicked bool
		if err := chromedp.Evaluate(script, &clicked).Do(ctx); err != nil {
			return err
		}
		if !clicked {
			return fmt.Errorf("no element matched %s", xpath)
		}
		return nil
	})
}
