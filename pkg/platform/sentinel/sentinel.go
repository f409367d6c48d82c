package sentinel

import "errors"

// ErrUnavailable marks a dependency that is temporarily unavailable (open
// circuit, outage). Clients return it wrapped so callers can tell a skipped
// call from a failed one.
var ErrUnavailable = errors.New("unavailable")
