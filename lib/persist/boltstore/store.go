package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/ValentinKolb/dMirror/lib/persist"
	"github.com/ValentinKolb/dMirror/lib/record/codec"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	bolt "go.etcd.io/bbolt"
)

var log = logger.GetLogger("persist")

var (
	metaBucket       = []byte("__dmirror_meta")
	versionKey       = []byte("version")
	configKeyPrefix  = "config:"
	collectionPrefix = "c:"
)

// NewBackend creates a new bbolt backed backend.
// If opts is nil, DefaultOptions() is used.
func NewBackend(opts *Options) (persist.Backend, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Codec == nil {
		opts.Codec = codec.NewBinaryCodec()
	}
	if opts.Dir == "" {
		return nil, fmt.Errorf("boltstore: data directory must not be empty")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("boltstore: failed to create data directory: %w", err)
	}

	return &backendImpl{
		opts:   *opts,
		stores: xsync.NewMapOf[string, *boltStore](),
	}, nil
}

type backendImpl struct {
	opts   Options
	stores *xsync.MapOf[string, *boltStore]
}

// boltStore is a reference counted bbolt database shared by all connections to a store
type boltStore struct {
	db    *bolt.DB
	conns int64 // only modified inside stores.Compute
}

func (b *backendImpl) path(name string) string {
	return filepath.Join(b.opts.Dir, name+".bolt")
}

// --------------------------------------------------------------------------
// Interface Methods (docu see persist/interface.go)
// --------------------------------------------------------------------------

func (b *backendImpl) Open(ctx context.Context, name string, version uint64, upgrade persist.UpgradeFunc) (persist.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, persist.Errorf(persist.RetCInvalidOperation, "invalid store name %q", name)
	}
	if version == 0 {
		return nil, persist.Errorf(persist.RetCInvalidOperation, "version must be greater than 0")
	}

	// open the file or take another reference on it
	var openErr error
	s, _ := b.stores.Compute(name, func(old *boltStore, loaded bool) (*boltStore, bool) {
		if loaded {
			old.conns++
			return old, false
		}
		db, err := bolt.Open(b.path(name), 0o600, &bolt.Options{Timeout: b.opts.Timeout, NoSync: b.opts.NoSync})
		if err != nil {
			openErr = err
			return nil, true
		}
		log.Debugf("opened store file %s", b.path(name))
		return &boltStore{db: db, conns: 1}, false
	})
	if openErr != nil {
		return nil, persist.Errorf(persist.RetCInternalError, "failed to open store %q: %v", name, openErr)
	}

	conn := &connImpl{backend: b, name: name, db: s.db}
	if err := conn.upgrade(version, upgrade); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func (b *backendImpl) DeleteStore(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var err error
	b.stores.Compute(name, func(old *boltStore, loaded bool) (*boltStore, bool) {
		if loaded {
			err = persist.Errorf(persist.RetCBusy, "store %q has %d open connections", name, old.conns)
			return old, false
		}
		if rmErr := os.Remove(b.path(name)); rmErr != nil && !os.IsNotExist(rmErr) {
			err = persist.Errorf(persist.RetCInternalError, "failed to delete store %q: %v", name, rmErr)
		}
		return nil, true
	})
	return err
}

// release drops one reference on the store and closes the file with the last one
func (b *backendImpl) release(name string) error {
	var err error
	b.stores.Compute(name, func(old *boltStore, loaded bool) (*boltStore, bool) {
		if !loaded {
			return nil, true
		}
		old.conns--
		if old.conns > 0 {
			return old, false
		}
		err = old.db.Close()
		log.Debugf("closed store file %s", b.path(name))
		return nil, true
	})
	return err
}

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

type connImpl struct {
	backend *backendImpl
	name    string
	db      *bolt.DB
	closed  atomic.Bool
}

func (c *connImpl) upgrade(version uint64, fn persist.UpgradeFunc) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return persist.Errorf(persist.RetCInternalError, "failed to create meta bucket: %v", err)
		}

		current := readVersion(meta)
		if version < current {
			return persist.Errorf(persist.RetCVersion, "requested version %d is lower than stored version %d", version, current)
		}
		if version == current {
			return nil
		}

		if fn != nil {
			if err := fn(&upgraderImpl{tx: tx, meta: meta, oldVersion: current, newVersion: version}); err != nil {
				return err
			}
		}

		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], version)
		if err := meta.Put(versionKey, buf[:]); err != nil {
			return persist.Errorf(persist.RetCInternalError, "failed to write version: %v", err)
		}
		log.Infof("upgraded store %q from version %d to %d", c.name, current, version)
		return nil
	})
}

func (c *connImpl) Name() string { return c.name }

func (c *connImpl) Version() uint64 {
	var version uint64
	_ = c.db.View(func(tx *bolt.Tx) error {
		if meta := tx.Bucket(metaBucket); meta != nil {
			version = readVersion(meta)
		}
		return nil
	})
	return version
}

func (c *connImpl) CollectionNames() []string {
	names := make([]string, 0)
	_ = c.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			if n, ok := strings.CutPrefix(string(name), collectionPrefix); ok {
				names = append(names, n)
			}
			return nil
		})
	})
	sort.Strings(names)
	return names
}

func (c *connImpl) Config(name string) (persist.CollectionConfig, bool) {
	var (
		cfg persist.CollectionConfig
		ok  bool
	)
	_ = c.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(metaBucket)
		if meta == nil {
			return nil
		}
		cfg, ok = readConfig(meta, name)
		return nil
	})
	return cfg, ok
}

func (c *connImpl) Transaction(names []string, mode persist.Mode) (persist.Tx, error) {
	if c.closed.Load() {
		return nil, persist.Errorf(persist.RetCClosed, "connection to store %q is closed", c.name)
	}
	if len(names) == 0 {
		return nil, persist.Errorf(persist.RetCInvalidOperation, "transaction needs at least one collection")
	}

	btx, err := c.db.Begin(mode == persist.ReadWrite)
	if err != nil {
		return nil, persist.Errorf(persist.RetCInternalError, "failed to begin transaction: %v", err)
	}

	meta := btx.Bucket(metaBucket)
	tx := &txImpl{tx: btx, mode: mode, codec: c.backend.opts.Codec, collections: make(map[string]*collectionImpl, len(names))}
	for _, name := range names {
		bucket := btx.Bucket([]byte(collectionPrefix + name))
		var cfg persist.CollectionConfig
		ok := false
		if meta != nil {
			cfg, ok = readConfig(meta, name)
		}
		if bucket == nil || !ok {
			_ = btx.Rollback()
			return nil, persist.Errorf(persist.RetCUnknownCollection, "collection %q does not exist", name)
		}
		tx.collections[name] = &collectionImpl{tx: tx, name: name, cfg: cfg}
	}
	return tx, nil
}

func (c *connImpl) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.backend.release(c.name)
}

// --------------------------------------------------------------------------
// Upgrader
// --------------------------------------------------------------------------

type upgraderImpl struct {
	tx         *bolt.Tx
	meta       *bolt.Bucket
	oldVersion uint64
	newVersion uint64
}

func (u *upgraderImpl) OldVersion() uint64 { return u.oldVersion }
func (u *upgraderImpl) NewVersion() uint64 { return u.newVersion }

func (u *upgraderImpl) HasCollection(name string) bool {
	return u.tx.Bucket([]byte(collectionPrefix+name)) != nil
}

func (u *upgraderImpl) CreateCollection(name string, cfg persist.CollectionConfig) error {
	if err := persist.ValidateConfig(name, cfg); err != nil {
		return err
	}
	if _, err := u.tx.CreateBucket([]byte(collectionPrefix + name)); err != nil {
		if errors.Is(err, bolt.ErrBucketExists) {
			return persist.Errorf(persist.RetCConstraint, "collection %q already exists", name)
		}
		return persist.Errorf(persist.RetCInternalError, "failed to create collection %q: %v", name, err)
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return persist.Errorf(persist.RetCInternalError, "failed to encode config of %q: %v", name, err)
	}
	if err := u.meta.Put([]byte(configKeyPrefix+name), data); err != nil {
		return persist.Errorf(persist.RetCInternalError, "failed to write config of %q: %v", name, err)
	}
	return nil
}

func (u *upgraderImpl) DeleteCollection(name string) error {
	if err := u.tx.DeleteBucket([]byte(collectionPrefix + name)); err != nil {
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return persist.Errorf(persist.RetCUnknownCollection, "collection %q does not exist", name)
		}
		return persist.Errorf(persist.RetCInternalError, "failed to delete collection %q: %v", name, err)
	}
	if err := u.meta.Delete([]byte(configKeyPrefix + name)); err != nil {
		return persist.Errorf(persist.RetCInternalError, "failed to delete config of %q: %v", name, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Meta helpers
// --------------------------------------------------------------------------

func readVersion(meta *bolt.Bucket) uint64 {
	v := meta.Get(versionKey)
	if len(v) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}

func readConfig(meta *bolt.Bucket, name string) (persist.CollectionConfig, bool) {
	var cfg persist.CollectionConfig
	data := meta.Get([]byte(configKeyPrefix + name))
	if data == nil {
		return cfg, false
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		log.Errorf("invalid config of collection %q: %v", name, err)
		return cfg, false
	}
	return cfg, true
}
