//go:build tools
// +build tools

// Package flowfunk tracks the tool dependencies used by the build.
package flowfunk

import (
	_ "github.com/mgechev/revive"
	_ "golang.org/x/lint/golint"
	_ "honnef.co/go/tools/cmd/staticcheck"
)
