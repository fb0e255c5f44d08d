// Package appfs exposes assets embedded into the binary.
package appfs

import "embed"

//go:embed migrations
var FS embed.FS
