package export

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// Login signs into the target application. The identity provider presents
// email and password on separate pages with the same submit button id, and
// may append a "stay signed in" confirmation that reuses the button again.
func (s *Session) Login(ctx context.Context, creds Credentials) error {
	if creds.TargetURL == "" {
		return fmt.Errorf("target URL is required")
	}
	if creds.Username == "" || creds.Password == "" {
		return fmt.Errorf("credentials are required")
	}

	s.logger.Info().Str("url", creds.TargetURL).Msg("Opening sign-in page")

	if err := s.run(ctx, s.config.ElementTimeout,
		chromedp.Navigate(creds.TargetURL),
		chromedp.WaitVisible(s.selectors.LoginEmail, chromedp.ByQuery),
		chromedp.SendKeys(s.selectors.LoginEmail, creds.Username, chromedp.ByQuery),
		chromedp.Click(s.selectors.LoginSubmit, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("email step failed: %w", err)
	}

	if err := s.run(ctx, s.config.ElementTimeout,
		chromedp.WaitVisible(s.selectors.LoginPassword, chromedp.ByQuery),
		chromedp.SendKeys(s.selectors.LoginPassword, creds.Password, chromedp.ByQuery),
		chromedp.Click(s.selectors.LoginSubmit, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("password step failed: %w", err)
	}

	// "Stay signed in?" only appears for some tenants
	if err := s.run(ctx, s.config.OverlayTimeout,
		chromedp.WaitVisible(s.selectors.LoginSubmit, chromedp.ByQuery),
		chromedp.Click(s.selectors.LoginSubmit, chromedp.ByQuery),
	); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Debug().Msg("No stay-signed-in prompt")
	}

	// The application shell can take minutes on cold tenants
	if err := s.run(ctx, s.config.ShellTimeout,
		chromedp.WaitVisible(s.selectors.FavoritesGroup, chromedp.BySearch),
	); err != nil {
		return fmt.Errorf("application shell did not load: %w", err)
	}

	s.waitOverlayGone(ctx)
	s.dismissPopups(ctx)
	s.logger.Info().Msg("Signed in, application shell ready")
	return nil
}

// dismissPopups clears announcement dialogs some tenants show after
// login. Everything here is best effort, a popup that refuses to close
// does not fail the run.
func (s *Session) dismissPopups(ctx context.Context) {
	settle := chromedp.Sleep(2 * time.Second)
	if err := s.run(ctx, s.config.OverlayTimeout, settle, chromedp.KeyEvent(kb.Escape)); err != nil {
		return
	}

	for _, selector := range s.selectors.PopupClose {
		if err := s.run(ctx, 2*time.Second, forceClick(selector)); err != nil {
			continue
		}
		s.logger.Debug().Str("selector", selector).Msg("Dismissed post-login popup")
	}
}
