// Package lode persists lattice output and run metrics as a Hive-partitioned
// JSONL dataset on a filesystem, S3, or in memory.
//
// Storage failures are returned as *StorageError classified by a sentinel
// kind, so callers can match them with errors.Is instead of strings.
package lode

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"syscall"
)

// Storage failure kinds. Match with errors.Is.
var (
	// ErrPermissionDenied indicates the dataset location refused access:
	// EACCES on a filesystem, 403 from S3.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound indicates the target path or key does not exist (ENOENT, 404).
	ErrNotFound = errors.New("not found")

	// ErrDiskFull indicates storage is out of space (ENOSPC, quota).
	ErrDiskFull = errors.New("no space left on device")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrThrottled indicates rate limiting (429, SlowDown).
	ErrThrottled = errors.New("rate limited")

	// ErrAuth indicates missing or invalid credentials.
	ErrAuth = errors.New("authentication failed")

	// ErrNetwork indicates a connection-level failure.
	ErrNetwork = errors.New("network error")

	// ErrUnclassified is the kind of any failure not matched above.
	ErrUnclassified = errors.New("storage error")
)

// StorageError is a classified storage failure. The cause stays in the
// chain for errors.As.
type StorageError struct {
	// Kind is one of the sentinel kinds above.
	Kind error
	// Op is the failed operation: "write", "read", "init" or "drop".
	Op string
	// Path is the dataset path involved, if any.
	Path string
	// Err is the underlying error.
	Err error
}

func (e *StorageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the error's kind.
func (e *StorageError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// wrap classifies err for op. Returns nil if err is nil.
func wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Kind: classifyError(err), Op: op, Path: path, Err: err}
}

// WrapWriteError classifies a write failure.
func WrapWriteError(err error, path string) error { return wrap("write", path, err) }

// WrapReadError classifies a read failure.
func WrapReadError(err error, path string) error { return wrap("read", path, err) }

// WrapInitError classifies a failure opening a dataset or store.
func WrapInitError(err error, dataset string) error { return wrap("init", dataset, err) }

// classifyRule maps message fragments (lowercase) to a kind.
type classifyRule struct {
	kind     error
	patterns []string
}

// Order matters: the first matching rule wins.
var classifyRules = []classifyRule{
	{ErrPermissionDenied, []string{"permission denied", "eacces", "accessdenied", "access denied", "forbidden", "403"}},
	{ErrDiskFull, []string{"no space left", "disk full", "enospc", "quota exceeded"}},
	{ErrNotFound, []string{"no such file", "does not exist", "not found", "enoent", "404", "nosuchkey"}},
	{ErrTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{ErrThrottled, []string{"slowdown", "rate exceeded", "throttl", "429", "toomanyrequests"}},
	{ErrAuth, []string{
		"nocredentialproviders", "credentials", "invalidaccesskeyid",
		"signaturedoesnotmatch", "expiredtoken", "401", "unauthorized",
	}},
	{ErrNetwork, []string{"connection refused", "no route to host", "network unreachable", "dns", "dial tcp"}},
}

// classifyError picks the kind for err: typed checks first, then message
// patterns.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, fs.ErrPermission):
		return ErrPermissionDenied
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case errors.Is(err, syscall.ENOSPC):
		return ErrDiskFull
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return ErrTimeout
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range classifyRules {
		for _, p := range rule.patterns {
			if strings.Contains(msg, p) {
				return rule.kind
			}
		}
	}
	return ErrUnclassified
}
