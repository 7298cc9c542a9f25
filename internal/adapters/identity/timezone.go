package identity

import "time"

// LocalTimezoneResolver implements ports.TimezoneResolver via the Go
// runtime's IANA tzdata lookup. No pack example carries a third-party
// timezone database package, and the standard library's time.LoadLocation
// already reads the system (or embedded, via the time/tzdata build tag)
// IANA database, so there is no ecosystem library this would wrap.
type LocalTimezoneResolver struct{}

// Resolve loads the named IANA timezone, falling back to UTC for an empty
// name. Unknown or malformed names surface time.LoadLocation's error; the
// scheduler core's own fallback-to-UTC behaviour lives in the caller.
func (LocalTimezoneResolver) Resolve(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}
