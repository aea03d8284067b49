package boltstore

import (
	"errors"

	"github.com/ValentinKolb/dMirror/lib/persist"
	"github.com/ValentinKolb/dMirror/lib/record"
	"github.com/ValentinKolb/dMirror/lib/record/codec"
	bolt "go.etcd.io/bbolt"
)

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

// txImpl wraps a single bbolt transaction.
//
// Thread-safety: like bbolt transactions, a txImpl must only be used by a single goroutine.
type txImpl struct {
	tx          *bolt.Tx
	mode        persist.Mode
	codec       codec.ICodec
	collections map[string]*collectionImpl
	done        bool
}

func (t *txImpl) Mode() persist.Mode { return t.mode }

func (t *txImpl) Collection(name string) (persist.Collection, error) {
	if t.done {
		return nil, persist.Errorf(persist.RetCClosed, "transaction already finished")
	}
	c, ok := t.collections[name]
	if !ok {
		return nil, persist.Errorf(persist.RetCUnknownCollection, "collection %q is not part of the transaction", name)
	}
	return c, nil
}

func (t *txImpl) Commit() error {
	if t.done {
		return persist.Errorf(persist.RetCClosed, "transaction already finished")
	}
	t.done = true
	if t.mode != persist.ReadWrite {
		// read-only bbolt transactions can't be committed
		return mapErr(t.tx.Rollback())
	}
	return mapErr(t.tx.Commit())
}

func (t *txImpl) Abort() error {
	if t.done {
		return nil
	}
	t.done = true
	return mapErr(t.tx.Rollback())
}

// mapErr translates bbolt errors into persist errors
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bolt.ErrTxClosed), errors.Is(err, bolt.ErrDatabaseNotOpen):
		return persist.Errorf(persist.RetCClosed, "%v", err)
	case errors.Is(err, bolt.ErrTxNotWritable), errors.Is(err, bolt.ErrDatabaseReadOnly):
		return persist.Errorf(persist.RetCReadOnly, "%v", err)
	default:
		return persist.Errorf(persist.RetCInternalError, "%v", err)
	}
}

// --------------------------------------------------------------------------
// Collection handle
// --------------------------------------------------------------------------

type collectionImpl struct {
	tx   *txImpl
	name string
	cfg  persist.CollectionConfig
}

// bucket returns the bbolt bucket of the collection after checking the transaction state
func (c *collectionImpl) bucket(write bool) (*bolt.Bucket, error) {
	if c.tx.done {
		return nil, persist.Errorf(persist.RetCClosed, "transaction already finished")
	}
	if write && c.tx.mode != persist.ReadWrite {
		return nil, persist.Errorf(persist.RetCReadOnly, "write in read-only transaction")
	}
	b := c.tx.tx.Bucket([]byte(collectionPrefix + c.name))
	if b == nil {
		return nil, persist.Errorf(persist.RetCUnknownCollection, "collection %q does not exist", c.name)
	}
	return b, nil
}

func (c *collectionImpl) Add(r record.Record) (any, error) {
	return c.write(r, false)
}

func (c *collectionImpl) Put(r record.Record) (any, error) {
	return c.write(r, true)
}

func (c *collectionImpl) write(r record.Record, overwrite bool) (any, error) {
	b, err := c.bucket(true)
	if err != nil {
		return nil, err
	}

	r, key, seq, err := persist.AssignKey(r, c.cfg, b.Sequence())
	if err != nil {
		return nil, err
	}
	enc, err := persist.EncodeKey(key)
	if err != nil {
		return nil, err
	}
	if !overwrite && b.Get(enc) != nil {
		return nil, persist.Errorf(persist.RetCConstraint, "key %v already exists", key)
	}
	if err := c.checkUnique(b, enc, r); err != nil {
		return nil, err
	}

	data, err := c.tx.codec.Encode(r)
	if err != nil {
		return nil, persist.Errorf(persist.RetCInvalidOperation, "failed to encode record: %v", err)
	}
	if err := b.Put(enc, data); err != nil {
		return nil, mapErr(err)
	}
	if seq != b.Sequence() {
		if err := b.SetSequence(seq); err != nil {
			return nil, mapErr(err)
		}
	}
	return key, nil
}

// checkUnique scans the collection for records sharing a unique field value with r
func (c *collectionImpl) checkUnique(b *bolt.Bucket, enc []byte, r record.Record) error {
	if len(c.cfg.Unique) == 0 {
		return nil
	}
	return b.ForEach(func(k, v []byte) error {
		if string(k) == string(enc) {
			return nil
		}
		other, err := c.tx.codec.Decode(v)
		if err != nil {
			return persist.Errorf(persist.RetCInternalError, "failed to decode record: %v", err)
		}
		if field, conflict := persist.UniqueConflict(r, other, c.cfg.Unique); conflict {
			return persist.Errorf(persist.RetCConstraint, "unique field %q violated", field)
		}
		return nil
	})
}

func (c *collectionImpl) Delete(key any) error {
	b, err := c.bucket(true)
	if err != nil {
		return err
	}
	enc, err := persist.EncodeKey(key)
	if err != nil {
		return err
	}
	return mapErr(b.Delete(enc))
}

func (c *collectionImpl) Clear() error {
	b, err := c.bucket(true)
	if err != nil {
		return err
	}
	// recreate the bucket, the key generator keeps its state
	seq := b.Sequence()
	name := []byte(collectionPrefix + c.name)
	if err := c.tx.tx.DeleteBucket(name); err != nil {
		return mapErr(err)
	}
	nb, err := c.tx.tx.CreateBucket(name)
	if err != nil {
		return mapErr(err)
	}
	return mapErr(nb.SetSequence(seq))
}

func (c *collectionImpl) Get(key any) (record.Record, bool, error) {
	b, err := c.bucket(false)
	if err != nil {
		return record.Record{}, false, err
	}
	enc, err := persist.EncodeKey(key)
	if err != nil {
		return record.Record{}, false, err
	}
	data := b.Get(enc)
	if data == nil {
		return record.Record{}, false, nil
	}
	r, err := c.tx.codec.Decode(data)
	if err != nil {
		return record.Record{}, false, persist.Errorf(persist.RetCInternalError, "failed to decode record: %v", err)
	}
	return r, true, nil
}

func (c *collectionImpl) Count() (int, error) {
	b, err := c.bucket(false)
	if err != nil {
		return 0, err
	}
	n := 0
	cur := b.Cursor()
	for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
		n++
	}
	return n, nil
}

func (c *collectionImpl) OpenCursor() (persist.Cursor, error) {
	b, err := c.bucket(false)
	if err != nil {
		return nil, err
	}
	return &cursorImpl{tx: c.tx, cur: b.Cursor()}, nil
}

// --------------------------------------------------------------------------
// Cursor
// --------------------------------------------------------------------------

// cursorImpl iterates over a bucket in key order. It is valid as long as the
// owning transaction is open.
type cursorImpl struct {
	tx      *txImpl
	cur     *bolt.Cursor
	started bool
	current record.Record
	err     error
}

func (c *cursorImpl) Next() bool {
	if c.err != nil || c.cur == nil {
		return false
	}
	if c.tx.done {
		c.err = persist.Errorf(persist.RetCClosed, "transaction already finished")
		return false
	}

	var k, v []byte
	if !c.started {
		c.started = true
		k, v = c.cur.First()
	} else {
		k, v = c.cur.Next()
	}
	if k == nil {
		c.current = record.Record{}
		return false
	}

	r, err := c.tx.codec.Decode(v)
	if err != nil {
		c.err = persist.Errorf(persist.RetCInternalError, "failed to decode record: %v", err)
		return false
	}
	c.current = r
	return true
}

func (c *cursorImpl) Record() record.Record { return c.current }

func (c *cursorImpl) Err() error { return c.err }

func (c *cursorImpl) Close() error {
	c.cur = nil
	return nil
}
