// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

//go:build mage

package main

import (
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Knowledge groups targets that maintain the local knowledge store.
type Knowledge mg.Namespace

// Ingest builds the CLI and indexes knowledge/traits and knowledge/documents.
func (Knowledge) Ingest() error {
	mg.Deps(Init, Build)
	return sh.RunV(filepath.Join(binDir, binName), "knowledge", "ingest")
}

// Stats prints knowledge store record counts.
func (Knowledge) Stats() error {
	mg.Deps(Build)
	return sh.RunV(filepath.Join(binDir, binName), "knowledge", "stats")
}
