// Package iox holds close helpers shared by sinks, readers and adapters.
package iox

import (
	"errors"
	"io"
)

// DiscardClose closes c and drops the error. For read-only handles and
// response bodies where a close failure changes nothing:
//
//	defer iox.DiscardClose(resp.Body)
func DiscardClose(c io.Closer) { _ = c.Close() }

// SyncCloser is a handle that can be flushed to stable storage.
type SyncCloser interface {
	Sync() error
	io.Closer
}

// SyncClose syncs f and then closes it. Close runs even when Sync fails;
// the sync error wins.
func SyncClose(f SyncCloser) error {
	serr := f.Sync()
	cerr := f.Close()
	if serr != nil {
		return serr
	}
	return cerr
}

// CloseAll closes every closer in order, nil entries skipped, and joins
// the failures.
func CloseAll(closers ...io.Closer) error {
	var errs []error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
