package popup

import "errors"

// Terminal session outcomes other than a matched redirect.
var (
	// ErrPopupClosed is returned when the user dismisses the surface before
	// any redirect matched. Closing the surface is the only cancellation path
	// an OAuth flow has, and it is terminal, not a neutral cancel.
	ErrPopupClosed = errors.New("authorization window was closed before completing")

	// ErrPopupLaunchFailed is returned when the surface could not be opened
	// or the start URL never loaded.
	ErrPopupLaunchFailed = errors.New("failed to open authorization window")

	// ErrNavigationFailed is returned when a navigation after the initial
	// load fails for a URL that is not the redirect target.
	ErrNavigationFailed = errors.New("authorization window navigation failed")
)
