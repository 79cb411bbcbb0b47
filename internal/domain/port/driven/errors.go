// Package driven defines the driven ports: interfaces the application core
// depends on and adapters implement.
package driven

import "errors"

// ErrNotFound is returned by store lookups when no matching row exists.
// Owner-scoped stores also return it on owner mismatch so callers cannot
// distinguish "absent" from "owned by someone else".
var ErrNotFound = errors.New("not found")
