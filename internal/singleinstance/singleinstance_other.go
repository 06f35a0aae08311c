//go:build !windows

package singleinstance

import "fmt"

// ErrAlreadyRunning is returned by Acquire when another holder already
// owns the named mutex.
var ErrAlreadyRunning = fmt.Errorf("another instance is already running")

// Lock is a no-op stub on non-Windows platforms: TimeFlow's Collector is
// a Windows-desktop tool, so this build only exists to keep the rest of
// the module buildable from a non-Windows machine.
type Lock struct{}

func Acquire(name string) (*Lock, error) { return &Lock{}, nil }

func (l *Lock) Release() error { return nil }
