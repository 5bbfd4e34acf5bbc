// -----------------------------------------------------------------------
// Invoice Export - Drives the per-invoice report and save dialog ritual
// -----------------------------------------------------------------------

package export

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// Settle pauses between UI stages. The app re-renders after most clicks
// and interacting too early lands on detached nodes.
const (
	settleShort = 500 * time.Millisecond
	settleLong  = 2 * time.Second
)

// ExportInvoice runs the export ritual for a single invoice number: open
// the report pane, fill the invoice filter, confirm the parameter flow,
// then accept the save dialog naming the file after the invoice.
//
// The browser download that results is captured separately; this method
// only guarantees the download was initiated.
func (s *Session) ExportInvoice(ctx context.Context, invoice string) error {
	if invoice == "" {
		return fmt.Errorf("invoice number is empty")
	}

	if err := s.openReportChain(ctx).Run(s.browserCtx, s.logger); err != nil {
		return err
	}
	s.waitOverlayGone(ctx)

	if err := s.run(ctx, s.config.ElementTimeout, chromedp.Sleep(settleShort)); err != nil {
		return err
	}
	if err := s.fillInvoiceFilter(ctx, invoice); err != nil {
		return err
	}

	if err := s.confirmChain(ctx).Run(s.browserCtx, s.logger); err != nil {
		return err
	}
	s.waitOverlayGone(ctx)

	return s.acceptSaveDialog(ctx, invoice)
}

// openReportChain opens the report pane: the Report menu entry followed
// by the Purchase order form link. Overlays sometimes swallow the first
// pass, so the fallback pauses and repeats both clicks through script.
func (s *Session) openReportChain(ctx context.Context) Chain {
	return Chain{
		Name: "open-report",
		Steps: []Step{
			{Name: "click", Action: s.sessionTask(ctx,
				chromedp.WaitVisible(s.selectors.ReportButton, chromedp.BySearch),
				chromedp.Click(s.selectors.ReportButton, chromedp.BySearch),
				chromedp.Sleep(settleShort),
				chromedp.Click(s.selectors.PurchaseForm, chromedp.BySearch),
			), Timeout: s.config.ElementTimeout},
			{Name: "retry", Action: s.sessionTask(ctx,
				chromedp.Sleep(settleLong),
				forceClick(s.selectors.ReportButton),
				chromedp.Sleep(settleShort),
				forceClick(s.selectors.PurchaseForm),
			), Timeout: s.config.ElementTimeout},
		},
	}
}

// confirmChain confirms the report parameter flow. A screen shows at most
// one of the Change/Apply/OK controls depending on its vintage, so each
// is its own candidate, with Enter for screens that have none.
func (s *Session) confirmChain(ctx context.Context) Chain {
	return Chain{
		Name: "confirm-parameters",
		Steps: []Step{
			{Name: "change", Action: s.sessionTask(ctx,
				chromedp.Click(s.selectors.ChangeButton, chromedp.BySearch),
			), Timeout: s.config.OverlayTimeout},
			{Name: "apply", Action: s.sessionTask(ctx,
				chromedp.Click(s.selectors.ApplyButton, chromedp.BySearch),
			), Timeout: s.config.OverlayTimeout},
			{Name: "ok", Action: s.sessionTask(ctx,
				chromedp.Click(s.selectors.ConfirmButton, chromedp.BySearch),
			), Timeout: s.config.OverlayTimeout},
			{Name: "enter", Action: s.sessionTask(ctx,
				chromedp.KeyEvent(kb.Enter),
			), Timeout: s.config.OverlayTimeout},
		},
	}
}

// saveDialogChain triggers the final confirmation. The OK button
// regularly sits behind a transparent modal layer, so a scripted click
// is the second candidate and Enter covers dialogs with no OK at all.
func (s *Session) saveDialogChain(ctx context.Context) Chain {
	return Chain{
		Name: "save-dialog-ok",
		Steps: []Step{
			{Name: "click", Action: s.sessionTask(ctx,
				chromedp.Click(s.selectors.SaveConfirm, chromedp.BySearch),
			), Timeout: s.config.OverlayTimeout},
			{Name: "force-click", Action: s.sessionTask(ctx,
				forceClick(s.selectors.SaveConfirm),
			), Timeout: s.config.OverlayTimeout},
			{Name: "enter", Action: s.sessionTask(ctx,
				chromedp.KeyEvent(kb.Enter),
			), Timeout: s.config.OverlayTimeout},
		},
	}
}

// fillInvoiceFilter locates the visible invoice filter input, clears any
// stale value from the previous invoice, and types the new number
func (s *Session) fillInvoiceFilter(ctx context.Context, invoice string) error {
	focusScript := fmt.Sprintf(`(function() {
		var els = document.querySelectorAll(%q);
		for (var i = 0; i < els.length; i++) {
			if (!els[i].disabled && els[i].offsetParent !== null) {
				els[i].focus();
				return true;
			}
		}
		return false;
	})()`, s.selectors.InvoiceInput)

	var focused bool
	if err := s.run(ctx, s.config.ElementTimeout, chromedp.Evaluate(focusScript, &focused)); err != nil {
		return fmt.Errorf("invoice input lookup failed: %w", err)
	}
	if !focused {
		return fmt.Errorf("no visible invoice input found")
	}

	// Select-all plus delete clears the previous invoice reliably where
	// programmatic value writes are reverted by the framework
	return s.run(ctx, s.config.ElementTimeout,
		chromedp.KeyEvent("a", chromedp.KeyModifiers(input.ModifierCtrl)),
		chromedp.KeyEvent(kb.Delete),
		chromedp.KeyEvent(invoice),
	)
}

// acceptSaveDialog names the exported file after the invoice, then
// confirms. Not every tenant shows the naming dialog, so a missing file
// name field is skipped rather than failing the attempt.
func (s *Session) acceptSaveDialog(ctx context.Context, invoice string) error {
	fileName := invoice + ".xlsx"

	if err := s.run(ctx, s.config.OverlayTimeout,
		chromedp.WaitVisible(s.selectors.FileNameInput, chromedp.BySearch),
		chromedp.Click(s.selectors.FileNameInput, chromedp.BySearch),
		chromedp.KeyEvent("a", chromedp.KeyModifiers(input.ModifierCtrl)),
		chromedp.KeyEvent(kb.Delete),
		chromedp.KeyEvent(fileName),
	); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Debug().Str("invoice", invoice).Msg("No naming dialog, keeping the browser's file name")
	}

	if err := s.saveDialogChain(ctx).Run(s.browserCtx, s.logger); err != nil {
		return err
	}

	// Some tenants show a trailing "export queued" popup; Enter dismisses
	// it and is harmless when nothing is focused
	if err := s.run(ctx, s.config.OverlayTimeout, chromedp.KeyEvent(kb.Enter)); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}
