// store.go - LevelDB persistence for the Merkle tree.
//
// Every populated leaf is stored under leaf_<index>, alongside the tree depth
// and populated count. Internal digests are rebuilt on load.

package merkle

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const leafPrefix = "leaf_"

var (
	depthKey     = []byte("meta_depth")
	populatedKey = []byte("meta_populated")
)

// PersistentTree is a Tree backed by a LevelDB directory. Changes become
// durable on Save.
type PersistentTree struct {
	*Tree
	db    *leveldb.DB
	dirty map[uint64]struct{}
}

// Open loads the tree stored at path, or creates an empty one. A stored tree
// of a different depth is reported as ErrCorruptState.
func Open(path string, depth int) (*PersistentTree, error) {
	tree, err := New(depth)
	if err != nil {
		return nil, err
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "open merkle store")
	}
	pt := &PersistentTree{Tree: tree, db: db, dirty: make(map[uint64]struct{})}
	if err := pt.load(); err != nil {
		db.Close()
		return nil, err
	}
	return pt, nil
}

func (pt *PersistentTree) load() error {
	raw, err := pt.db.Get(depthKey, nil)
	if err == leveldb.ErrNotFound {
		return pt.checkEmpty()
	}
	if err != nil {
		return errors.Wrap(err, "read tree depth")
	}
	if len(raw) != 4 {
		return errors.Wrap(ErrCorruptState, "depth record")
	}
	if stored := int(binary.BigEndian.Uint32(raw)); stored != pt.depth {
		return errors.Wrapf(ErrCorruptState, "stored depth %d, requested %d", stored, pt.depth)
	}

	iter := pt.db.NewIterator(util.BytesPrefix([]byte(leafPrefix)), nil)
	defer iter.Release()
	for iter.Next() {
		index, err := parseLeafKey(string(iter.Key()))
		if err != nil {
			return errors.Wrap(ErrCorruptState, err.Error())
		}
		if err := pt.Tree.SetEntry(index, iter.Value()); err != nil {
			return errors.Wrapf(ErrCorruptState, "leaf %d: %v", index, err)
		}
	}
	if err := iter.Error(); err != nil {
		return errors.Wrap(err, "iterate leaves")
	}

	raw, err = pt.db.Get(populatedKey, nil)
	switch {
	case err == leveldb.ErrNotFound:
	case err != nil:
		return errors.Wrap(err, "read populated count")
	case len(raw) != 8:
		return errors.Wrap(ErrCorruptState, "populated record")
	default:
		if n := binary.BigEndian.Uint64(raw); n > pt.populated {
			if n > pt.Capacity() {
				return errors.Wrapf(ErrCorruptState, "populated count %d exceeds capacity", n)
			}
			pt.populated = n
		}
	}
	return nil
}

// checkEmpty rejects a store that holds tree records but no depth.
func (pt *PersistentTree) checkEmpty() error {
	if ok, err := pt.db.Has(populatedKey, nil); err != nil {
		return errors.Wrap(err, "read populated count")
	} else if ok {
		return errors.Wrap(ErrCorruptState, "populated count without depth")
	}
	iter := pt.db.NewIterator(util.BytesPrefix([]byte(leafPrefix)), nil)
	defer iter.Release()
	if iter.Next() {
		return errors.Wrapf(ErrCorruptState, "leaf %q without depth", iter.Key())
	}
	return errors.Wrap(iter.Error(), "iterate leaves")
}

// SetEntry updates the in-memory tree and marks the leaf for the next Save.
func (pt *PersistentTree) SetEntry(index uint64, data []byte) error {
	if err := pt.Tree.SetEntry(index, data); err != nil {
		return err
	}
	pt.dirty[index] = struct{}{}
	return nil
}

// Save writes all modified leaves and the tree metadata in one synced batch.
func (pt *PersistentTree) Save() error {
	pt.mu.RLock()
	batch := new(leveldb.Batch)
	var depth [4]byte
	binary.BigEndian.PutUint32(depth[:], uint32(pt.depth))
	batch.Put(depthKey, depth[:])
	var populated [8]byte
	binary.BigEndian.PutUint64(populated[:], pt.populated)
	batch.Put(populatedKey, populated[:])
	for index := range pt.dirty {
		address, _ := pt.LeafAddress(index)
		if h := pt.node(address); h != ZeroEntry {
			batch.Put(leafKey(index), h.Bytes())
		} else {
			batch.Delete(leafKey(index))
		}
	}
	pt.mu.RUnlock()

	if err := pt.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return errors.Wrap(err, "write merkle store")
	}
	pt.dirty = make(map[uint64]struct{})
	return nil
}

// Close releases the underlying database without saving.
func (pt *PersistentTree) Close() error {
	return pt.db.Close()
}

func leafKey(index uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", leafPrefix, index))
}

func parseLeafKey(key string) (uint64, error) {
	if !strings.HasPrefix(key, leafPrefix) {
		return 0, errors.Errorf("unexpected key %q", key)
	}
	index, err := strconv.ParseUint(strings.TrimPrefix(key, leafPrefix), 10, 64)
	if err != nil {
		return 0, errors.Errorf("bad leaf key %q: %v", key, err)
	}
	return index, nil
}
