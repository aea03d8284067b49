package mirror

// PersistErrorHandler is called by the write-behind goroutine for every failed write.
// It must not call back into the mirror's Close or Flush.
type PersistErrorHandler func(err *PersistError)

// ReadyFunc is called exactly once per Open when every collection finished loading.
// err joins the load errors of all collections that failed, it is nil on success.
type ReadyFunc func(err error)

// Options configures a Mirror
type Options struct {
	// Version is the schema version the store is opened with. Raising it lets Open
	// create collections declared after the store was first created.
	Version uint64
	// OnPersistError receives failed write-behind operations. Nil only logs them.
	OnPersistError PersistErrorHandler
}

// DefaultOptions returns the default mirror options
func DefaultOptions() *Options {
	return &Options{
		Version: 1,
	}
}
