//go:build sawctl_nox11

package sawctl

// openFallback is the fallback-disabled variant: the X11 property
// transport is compiled out, so the socket transport's error stands.
func openFallback(_ string, sockErr error) (transport, error) {
	return nil, sockErr
}
