//go:build !cgo_sqlite

package manifest

import (
	_ "modernc.org/sqlite" // pure Go driver
)

const (
	driverName = "sqlite"
	driverType = "purego"
)
