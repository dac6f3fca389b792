//go:build deadlock

// Package syncutil provides the lock types used across the module. Building with
// -tags=deadlock swaps them for go-deadlock implementations that report lock
// cycles and long waits.
package syncutil

import deadlock "github.com/sasha-s/go-deadlock"

// Mutex reports potential deadlocks when built with -tags=deadlock.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex reports potential deadlocks when built with -tags=deadlock.
type RWMutex struct {
	deadlock.RWMutex
}
