//go:build !unix

package speech

import "os/exec"

// killProcessGroup keeps the default cancel, which kills only the direct process.
func killProcessGroup(*exec.Cmd) {}
