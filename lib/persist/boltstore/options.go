package boltstore

import (
	"time"

	"github.com/ValentinKolb/dMirror/lib/record/codec"
)

// Options configures the bbolt backend.
type Options struct {
	// Dir is the directory holding the store files. It is created if it does not exist.
	Dir string
	// Codec encodes records on disk. Changing the codec of an existing store makes
	// its records unreadable.
	Codec codec.ICodec
	// Timeout is the time to wait for the file lock of a store held by another process.
	// Zero waits forever.
	Timeout time.Duration
	// NoSync skips fsync after each commit. Only for tests and bulk imports.
	NoSync bool
}

// DefaultOptions returns the default options of the backend
func DefaultOptions() *Options {
	return &Options{
		Dir:     "./data",
		Codec:   codec.NewBinaryCodec(),
		Timeout: 5 * time.Second,
	}
}
