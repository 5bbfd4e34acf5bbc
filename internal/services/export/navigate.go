package export

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
)

// OpenExportScreen walks the navigation pane to the bulk invoice export
// screen. Navigation is soft by default: tenants that land users directly
// on the export screen make the menu walk fail even though the screen is
// already open, so failures log a warning and the run continues. Setting
// strict_navigation treats any failure as fatal instead.
func (s *Session) OpenExportScreen(ctx context.Context) error {
	s.logger.Info().Msg("Navigating to the bulk invoice export screen")

	err := s.run(ctx, s.config.ElementTimeout,
		chromedp.WaitVisible(s.selectors.FavoritesGroup, chromedp.BySearch),
		chromedp.Click(s.selectors.FavoritesGroup, chromedp.BySearch),
		chromedp.WaitVisible(s.selectors.ExportMenuItem, chromedp.BySearch),
		chromedp.Click(s.selectors.ExportMenuItem, chromedp.BySearch),
	)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.config.StrictNavigation {
			return fmt.Errorf("failed to open export screen: %w", err)
		}
		s.logger.Warn().Err(err).Msg("Menu navigation failed, assuming export screen is already open")
	}

	s.waitOverlayGone(ctx)
	return nil
}
