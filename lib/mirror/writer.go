package mirror

import (
	"context"

	"github.com/ValentinKolb/dMirror/lib/persist"
	"github.com/ValentinKolb/dMirror/lib/record"
	"github.com/ValentinKolb/dMirror/lib/util"
)

// opKind is the kind of a write-behind operation
type opKind int

const (
	opAdd opKind = iota
	opPut
	opDelete
	opClear
	opFlush // no write, closes done once all earlier operations were attempted
)

func (k opKind) String() string {
	switch k {
	case opAdd:
		return "add"
	case opPut:
		return "put"
	case opDelete:
		return "delete"
	case opClear:
		return "clear"
	case opFlush:
		return "flush"
	default:
		return "unknown"
	}
}

// writeOp is a single mutation mirrored to the backend
type writeOp struct {
	kind       opKind
	collection string
	record     record.Record
	key        any
	done       chan struct{}
}

// writer applies write-behind operations in the order they were issued.
// Every operation runs in its own single-collection read-write transaction.
type writer struct {
	store   string
	conn    persist.Conn
	queue   *util.Queue[writeOp]
	onError PersistErrorHandler
	metrics *storeMetrics
	stopped chan struct{}
}

func newWriter(store string, conn persist.Conn, onError PersistErrorHandler, metrics *storeMetrics) *writer {
	w := &writer{
		store:   store,
		conn:    conn,
		queue:   util.NewQueue[writeOp](),
		onError: onError,
		metrics: metrics,
		stopped: make(chan struct{}),
	}
	go w.run()
	return w
}

// enqueue issues an operation without waiting for it.
// The registry lock must be held so operations keep the order of the in-memory changes.
func (w *writer) enqueue(op writeOp) {
	if !w.queue.Push(op) {
		w.report(op, persist.ErrClosed)
	}
}

// flush waits until every operation enqueued before the call was attempted
func (w *writer) flush(ctx context.Context) error {
	done := make(chan struct{})
	if !w.queue.Push(writeOp{kind: opFlush, done: done}) {
		return ErrNotOpen
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop closes the queue and waits until it is drained
func (w *writer) stop() {
	w.queue.Close()
	<-w.stopped
}

// pending returns the number of operations not yet attempted
func (w *writer) pending() int {
	return w.queue.Len()
}

func (w *writer) run() {
	defer close(w.stopped)
	for op := range w.queue.Recv() {
		if op.kind == opFlush {
			close(op.done)
			continue
		}
		w.metrics.persistOp(op.kind.String())
		if err := w.apply(op); err != nil {
			w.report(op, err)
		}
	}
}

func (w *writer) apply(op writeOp) error {
	tx, err := w.conn.Transaction([]string{op.collection}, persist.ReadWrite)
	if err != nil {
		return err
	}
	c, err := tx.Collection(op.collection)
	if err != nil {
		_ = tx.Abort()
		return err
	}

	switch op.kind {
	case opAdd:
		_, err = c.Add(op.record)
	case opPut:
		_, err = c.Put(op.record)
	case opDelete:
		err = c.Delete(op.key)
	case opClear:
		err = c.Clear()
	}
	if err != nil {
		_ = tx.Abort()
		return err
	}
	return tx.Commit()
}

func (w *writer) report(op writeOp, err error) {
	w.metrics.persistError(op.kind.String())
	perr := &PersistError{Op: op.kind.String(), Collection: op.collection, Key: op.key, Err: err}
	log.Errorf("store %q: %v", w.store, perr)
	if w.onError != nil {
		w.onError(perr)
	}
}
