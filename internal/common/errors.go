// Package common defines shared sentinel errors used across server layers.
// Callers match these values with errors.Is.
package common

import "errors"

// ErrNotFound is returned by repositories when a keyed lookup matches
// no row.
var ErrNotFound = errors.New("not found")
