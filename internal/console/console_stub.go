//go:build !windows

package console

import "errors"

// New is only implemented for Windows consoles; every other platform
// gets the Fake through the tests and nothing at runtime.
func New() (Api, error) {
	return nil, errors.New("console: only supported on windows")
}
