package coursekit

import "errors"

// Sentinel errors for course compilation.
var (
	// ErrNoFirstSection is fatal: steps before the first section title have
	// no section to belong to.
	ErrNoFirstSection = errors.New("every course has to start with a section title (##)")
)
