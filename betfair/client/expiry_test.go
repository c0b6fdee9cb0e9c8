package client

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/betbot/replicator/pkg/config"
)

func TestExpiryClassifier_DefaultMarkers(t *testing.T) {
	c := NewExpiryClassifier(nil)

	expired := []string{
		"RPC_ERROR: -32099 ANGX-0003 [INVALID_SESSION_INFORMATION]",
		"no_session",
		"Not Authorized",
		"session token has expired",
	}
	for _, text := range expired {
		assert.True(t, c.IsSessionExpired(text), text)
	}

	assert.False(t, c.IsSessionExpired("RPC_ERROR: -32099 ANGX-0002 [INSUFFICIENT_FUNDS]"))
	assert.False(t, c.IsSessionExpired("RPC_ERROR: -32602 DSC-0018 [INVALID_INPUT_DATA]"))
	assert.False(t, c.IsSessionExpired("", ""))
	assert.Len(t, c.Markers(), 10)
}

func TestExpiryClassifier_EveryDefaultMarkerMatches(t *testing.T) {
	c := NewExpiryClassifier(config.DefaultSessionExpiredMarkers)
	assert.Equal(t, config.DefaultSessionExpiredMarkers, c.Markers())

	for _, m := range config.DefaultSessionExpiredMarkers {
		assert.True(t, c.IsSessionExpired("RPC_ERROR: -32099 ["+m+"]"), m)
		assert.True(t, c.IsSessionExpired("", "body: "+strings.ToLower(m)), m)
	}
}

func TestExpiryClassifier_CustomMarkers(t *testing.T) {
	c := NewExpiryClassifier([]string{" angx-0003 ", ""})

	assert.Equal(t, []string{"ANGX-0003"}, c.Markers())
	assert.True(t, c.IsSessionExpired("ok", "error ANGX-0003"))
	assert.False(t, c.IsSessionExpired("INVALID_SESSION"))
}
