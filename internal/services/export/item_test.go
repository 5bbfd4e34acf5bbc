package export

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/traho/internal/common"
)

func chainFixture() *Session {
	return &Session{
		selectors: DefaultSelectors(),
		config: common.BotConfig{
			ElementTimeout: time.Second,
			OverlayTimeout: time.Second,
		},
		logger: arbor.NewLogger(),
	}
}

func stepNames(c Chain) []string {
	names := make([]string, len(c.Steps))
	for i, s := range c.Steps {
		names[i] = s.Name
	}
	return names
}

func TestOpenReportChainRetriesBothClicks(t *testing.T) {
	s := chainFixture()
	c := s.openReportChain(context.Background())

	// The fallback repeats the full two-click sequence, not just the
	// report button
	assert.Equal(t, []string{"click", "retry"}, stepNames(c))
}

func TestConfirmChainTriesEachButtonThenEnter(t *testing.T) {
	s := chainFixture()
	c := s.confirmChain(context.Background())

	// A screen shows at most one of the three buttons, so each is its
	// own candidate
	assert.Equal(t, []string{"change", "apply", "ok", "enter"}, stepNames(c))
}

func TestSaveDialogChainFallsBackToEnter(t *testing.T) {
	s := chainFixture()
	c := s.saveDialogChain(context.Background())

	assert.Equal(t, []string{"click", "force-click", "enter"}, stepNames(c))
}

func TestLoginSelectorsMatchTypeOrName(t *testing.T) {
	sel := DefaultSelectors()

	assert.Contains(t, sel.LoginEmail, `input[type="email"]`)
	assert.Contains(t, sel.LoginEmail, `input[name="loginfmt"]`)
	assert.Contains(t, sel.LoginPassword, `input[type="password"]`)
	assert.Contains(t, sel.LoginPassword, `input[name="passwd"]`)
}
