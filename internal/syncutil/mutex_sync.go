//go:build !deadlock

// Package syncutil provides the lock types used across the module. Building with
// -tags=deadlock swaps them for go-deadlock implementations that report lock
// cycles and long waits.
package syncutil

import "sync"

// Mutex is a sync.Mutex in regular builds.
type Mutex struct {
	sync.Mutex
}

// RWMutex is a sync.RWMutex in regular builds.
type RWMutex struct {
	sync.RWMutex
}
