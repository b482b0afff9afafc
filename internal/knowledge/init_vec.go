//go:build sqlite_vec && cgo

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Registers sqlite-vec as an auto-loaded extension for every
	// mattn/go-sqlite3 connection.
	vec.Auto()
}
