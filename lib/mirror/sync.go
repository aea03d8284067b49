package mirror

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ValentinKolb/dMirror/lib/persist"
	"github.com/ValentinKolb/dMirror/lib/record"
)

// --------------------------------------------------------------------------
// Completion barrier
// --------------------------------------------------------------------------

// barrier counts finished collection loads and calls fn exactly once when all of
// them reported, no matter in which order.
type barrier struct {
	mu        sync.Mutex
	remaining int
	errs      []error
	fired     bool
	fn        func(err error)
}

func newBarrier(n int, fn func(err error)) *barrier {
	return &barrier{remaining: n, fn: fn}
}

// done reports one finished load
func (b *barrier) done(err error) {
	b.mu.Lock()
	if err != nil {
		b.errs = append(b.errs, err)
	}
	b.remaining--
	b.mu.Unlock()
	b.release()
}

// release fires the callback if no load is outstanding and it didn't fire yet.
// It is called directly for an empty store.
func (b *barrier) release() {
	b.mu.Lock()
	if b.remaining > 0 || b.fired {
		b.mu.Unlock()
		return
	}
	b.fired = true
	err := errors.Join(b.errs...)
	b.mu.Unlock()

	b.fn(err)
}

// --------------------------------------------------------------------------
// Sync
// --------------------------------------------------------------------------

// startSync loads every collection in its own goroutine.
// The caller holds the registry lock.
func (m *Mirror) startSync(ctx context.Context, names []string, onReady ReadyFunc) {
	gen, readyCh, conn, loads := m.generation, m.readyCh, m.conn, m.loads

	b := newBarrier(len(names), func(err error) {
		m.markReady(gen, readyCh, err)
		if onReady != nil {
			onReady(err)
		}
	})

	if len(names) == 0 {
		// nothing to load, but the callback must not run under the caller's lock
		go b.release()
		return
	}

	loads.Add(len(names))
	for _, name := range names {
		cfg := m.collections[name].cfg
		go func() {
			start := time.Now()
			records, seq, err := load(ctx, conn, name, cfg)
			if err != nil {
				log.Errorf("failed to load collection %q of store %q: %v", name, m.name, err)
				err = fmt.Errorf("collection %q: %w", name, err)
			} else {
				m.publish(gen, name, records, seq)
				m.metrics.synced(start, len(records))
				log.Debugf("loaded %d records of collection %q in %s", len(records), name, time.Since(start))
			}
			loads.Done()
			b.done(err)
		}()
	}
}

// load drains the cursor of a collection in a read-only transaction
func load(ctx context.Context, conn persist.Conn, name string, cfg persist.CollectionConfig) ([]record.Record, uint64, error) {
	tx, err := conn.Transaction([]string{name}, persist.ReadOnly)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Commit()

	c, err := tx.Collection(name)
	if err != nil {
		return nil, 0, err
	}
	cur, err := c.OpenCursor()
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close()

	var (
		records = make([]record.Record, 0)
		seq     uint64
	)
	for cur.Next() {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		r := cur.Record()
		if key, ok := r.Get(cfg.KeyField); ok {
			if k, ok := record.AsInt64(key); ok && k > 0 && uint64(k) > seq {
				seq = uint64(k)
			}
		}
		records = append(records, r)
	}
	if err := cur.Err(); err != nil {
		return nil, 0, err
	}
	return records, seq, nil
}

// publish installs the loaded records unless the mirror was closed or reopened meanwhile
func (m *Mirror) publish(gen uint64, name string, records []record.Record, seq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation || !m.open {
		return
	}
	c, ok := m.collections[name]
	if !ok {
		return
	}
	c.records = records
	c.seq = max(c.seq, seq)
}

// markReady opens the registry for views and releases everyone waiting on readyCh
func (m *Mirror) markReady(gen uint64, readyCh chan struct{}, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen == m.generation && m.open {
		m.ready = true
		m.readyErr = err
		if err != nil {
			log.Warningf("store %q is ready with load errors: %v", m.name, err)
		} else {
			log.Infof("store %q is ready", m.name)
		}
	}
	close(readyCh)
}
