package shared

import "errors"

// ErrUnavailable indicates a dependency (database, cache, queue) is not configured.
var ErrUnavailable = errors.New("dependency unavailable")
