//go:build !sawctl_nox11

package sawctl

import (
	"github.com/rs/zerolog/log"

	"github.com/sawfishwm/sawctl/xprop"
)

// ErrServerNotFound reports that the fallback transport found no server
// listening on the display. Absent when the fallback is compiled out.
var ErrServerNotFound = xprop.ErrServerNotFound

// openFallback retries the connection over the X11 property protocol.
// The socket error is dropped: from here on the caller gets the property
// transport's own verdict.
func openFallback(disp string, _ error) (transport, error) {
	return xprop.Open(disp, log.With().Str("component", "xprop").Logger())
}
