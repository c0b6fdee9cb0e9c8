package client

import (
	"strings"

	"github.com/betbot/replicator/pkg/config"
)

// HeuristicVersion identifies the session-expired marker list in use.
// v1: INVALID_SESSION, NO_SESSION, SESSION_EXPIRED, EXPIRED, UNAUTHORIZED,
// NOT_AUTHORIZED, "NOT AUTHORIZED", TOKEN, SESSION, ANGX-0003.
//
// TOKEN and SESSION are broad and will also match application errors that
// merely mention those words. A false positive costs one extra re-login.
const HeuristicVersion = "v1"

// ExpiryClassifier matches error text against session-expired markers.
type ExpiryClassifier struct {
	markers []string
}

// NewExpiryClassifier builds a classifier; an empty list selects the v1 defaults.
func NewExpiryClassifier(markers []string) *ExpiryClassifier {
	if len(markers) == 0 {
		markers = config.DefaultSessionExpiredMarkers
	}
	c := &ExpiryClassifier{markers: make([]string, 0, len(markers))}
	for _, m := range markers {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m != "" {
			c.markers = append(c.markers, m)
		}
	}
	return c
}

// IsSessionExpired reports whether any text contains a marker, case-insensitively.
func (c *ExpiryClassifier) IsSessionExpired(texts ...string) bool {
	for _, t := range texts {
		if t == "" {
			continue
		}
		upper := strings.ToUpper(t)
		for _, m := range c.markers {
			if strings.Contains(upper, m) {
				return true
			}
		}
	}
	return false
}

// Markers returns a copy of the active marker list.
func (c *ExpiryClassifier) Markers() []string {
	return append([]string(nil), c.markers...)
}
