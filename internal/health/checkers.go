// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// BinaryChecker verifies that an external engine binary is resolvable.
type BinaryChecker struct {
	name string
	bin  string
}

// NewBinaryChecker creates a checker that looks up bin on PATH (or verifies
// an absolute path).
func NewBinaryChecker(name, bin string) *BinaryChecker {
	return &BinaryChecker{name: name, bin: bin}
}

func (c *BinaryChecker) Name() string { return c.name }

func (c *BinaryChecker) Check(_ context.Context) CheckResult {
	path, err := exec.LookPath(c.bin)
	if err != nil {
		return CheckResult{
			Status: StatusUnhealthy,
			Error:  fmt.Sprintf("binary %q not found: %v", c.bin, err),
		}
	}
	return CheckResult{Status: StatusHealthy, Message: path}
}

// DirWritableChecker verifies that a directory exists and accepts writes.
type DirWritableChecker struct {
	name string
	dir  string
}

// NewDirWritableChecker creates a checker probing dir with a temp file.
func NewDirWritableChecker(name, dir string) *DirWritableChecker {
	return &DirWritableChecker{name: name, dir: dir}
}

func (c *DirWritableChecker) Name() string { return c.name }

func (c *DirWritableChecker) Check(_ context.Context) CheckResult {
	info, err := os.Stat(c.dir)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	if !info.IsDir() {
		return CheckResult{Status: StatusUnhealthy, Error: fmt.Sprintf("%s is not a directory", c.dir)}
	}

	probe, err := os.CreateTemp(c.dir, ".readyz-*")
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)

	return CheckResult{Status: StatusHealthy, Message: filepath.Clean(c.dir)}
}
