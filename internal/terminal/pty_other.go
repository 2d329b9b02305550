//go:build !linux

package terminal

import "errors"

var errPTYUnsupported = errors.New("pty sessions require linux")

type ptyConfig struct {
	Shell  string
	Dir    string
	Cols   int
	Rows   int
	OnData func(data []byte)
	OnExit func()
}

// newPTYBacking always fails here; the manager falls back to the simulated
// shell.
func newPTYBacking(ptyConfig) (backing, error) {
	return nil, errPTYUnsupported
}
