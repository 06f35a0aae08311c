//go:build windows

// Package singleinstance implements spec.md §211's Collector startup
// check: acquire a named OS mutex, and if it's already held, report
// that another Collector is running instead of starting a second
// sampling loop. Ground: the teacher's gonutz/w32 usage for other
// Win32 calls (internal/collector/sampler) generalized to
// golang.org/x/sys/windows, the lower-level package that actually
// exposes CreateMutex — w32 itself only wraps window/process
// enumeration, not synchronization objects.
package singleinstance

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// ErrAlreadyRunning is returned by Acquire when another holder already
// owns the named mutex.
var ErrAlreadyRunning = fmt.Errorf("another instance is already running")

// Lock holds an acquired named mutex for the lifetime of the process.
type Lock struct {
	handle windows.Handle
}

// Acquire creates (or opens) a named mutex and takes ownership of it.
// name should be a short, stable identifier unique to the calling
// application (e.g. "TimeFlowCollector") — Acquire prefixes it with
// "Global\\" so the check holds across user sessions.
func Acquire(name string) (*Lock, error) {
	fullName, err := windows.UTF16PtrFromString("Global\\" + name)
	if err != nil {
		return nil, fmt.Errorf("encode mutex name: %w", err)
	}

	handle, err := windows.CreateMutex(nil, false, fullName)
	if err != nil {
		return nil, fmt.Errorf("create mutex: %w", err)
	}
	// CreateMutex returns a valid handle even when the mutex already
	// existed; that case is only visible via GetLastError, not err.
	if windows.GetLastError() == windows.ERROR_ALREADY_EXISTS {
		windows.CloseHandle(handle)
		return nil, ErrAlreadyRunning
	}

	return &Lock{handle: handle}, nil
}

// Release closes the mutex handle, freeing it for the next instance.
func (l *Lock) Release() error {
	return windows.CloseHandle(l.handle)
}
