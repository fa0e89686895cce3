//go:build tools

// Package collabhub pins the tools run by go generate (mockgen) so they
// are tracked in go.mod.
package collabhub

import (
	_ "go.uber.org/mock/mockgen"
)
