package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/traho/internal/common"
)

func TestRunLogMinLevelFilter(t *testing.T) {
	h := NewWebSocketHandler(nil, arbor.NewLogger(), &common.WebSocketConfig{MinLevel: "warn"})

	assert.False(t, h.logLevelAllowed("debug"))
	assert.False(t, h.logLevelAllowed("info"))
	assert.True(t, h.logLevelAllowed("warn"))
	assert.True(t, h.logLevelAllowed("error"))
	// Unknown levels are never dropped
	assert.True(t, h.logLevelAllowed("notice"))
}

func TestRunLogMinLevelDefaultsToEverything(t *testing.T) {
	h := NewWebSocketHandler(nil, arbor.NewLogger(), nil)

	assert.True(t, h.logLevelAllowed("debug"))
	assert.True(t, h.logLevelAllowed("error"))
}
