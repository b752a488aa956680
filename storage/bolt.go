package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"sync"

	"github.com/boltdb/bolt"

	"github.com/aecra/raftcore/raft"
)

var (
	entriesBucket = []byte("entries")
	metaBucket    = []byte("meta")

	metaTermKey        = []byte("current_term")
	metaVotedForKey    = []byte("voted_for")
	metaHasVotedForKey = []byte("has_voted_for")
)

// BoltLog is a durable raft.Log backed by a single BoltDB file, grounded
// on the rest of the example pack's use of github.com/boltdb/bolt as the
// embedded-storage choice for a small consensus system. Log entries are
// indexed 1-based by an 8-byte big-endian key; currentTerm and votedFor
// live in a separate meta bucket and are written together in one
// transaction, so a term change is never observed without its vote.
// Entries and meta are written in separate transactions, each fsynced by
// bolt before Update returns.
type BoltLog struct {
	db *bolt.DB

	mu        sync.Mutex
	lastIndex uint64
	lastTerm  uint64
}

// OpenBoltLog opens (creating if necessary) a BoltDB file at path.
func OpenBoltLog(path string) (*BoltLog, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open bolt log: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(entriesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(metaBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: init bolt log: %w", err)
	}

	l := &BoltLog{db: db}
	if err := l.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(entriesBucket).Cursor()
		k, v := c.Last()
		if k == nil {
			return nil
		}
		l.lastIndex = indexFromKey(k)
		var e raft.LogEntry
		if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&e); err != nil {
			return err
		}
		l.lastTerm = e.Term
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: load bolt log: %w", err)
	}
	return l, nil
}

// Close releases the underlying BoltDB file.
func (l *BoltLog) Close() error {
	return l.db.Close()
}

func indexToKey(index uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, index)
	return k
}

func indexFromKey(k []byte) uint64 {
	return binary.BigEndian.Uint64(k)
}

func (l *BoltLog) GetLastIndex() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastIndex
}

func (l *BoltLog) GetLastTerm() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastTerm
}

func (l *BoltLog) GetEntry(index uint64) (raft.LogEntry, bool) {
	if index == 0 {
		return raft.LogEntry{}, false
	}
	var entry raft.LogEntry
	found := false
	_ = l.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(entriesBucket).Get(indexToKey(index))
		if v == nil {
			return nil
		}
		if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&entry); err != nil {
			return err
		}
		found = true
		return nil
	})
	return entry, found
}

func (l *BoltLog) GetTerm(index uint64) uint64 {
	e, ok := l.GetEntry(index)
	if !ok {
		return 0
	}
	return e.Term
}

func (l *BoltLog) Append(entries []raft.LogEntry) (uint64, error) {
	if len(entries) == 0 {
		return l.GetLastIndex(), nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.lastIndex
	err := l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		for _, e := range entries {
			next++
			var buf bytes.Buffer
			if err := gob.NewEncoder(&buf).Encode(e); err != nil {
				return err
			}
			if err := b.Put(indexToKey(next), buf.Bytes()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return l.lastIndex, fmt.Errorf("storage: append: %w", err)
	}
	l.lastIndex = next
	l.lastTerm = entries[len(entries)-1].Term
	return l.lastIndex, nil
}

func (l *BoltLog) Truncate(prevIndex uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if prevIndex >= l.lastIndex {
		return nil
	}
	err := l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		c := b.Cursor()
		for k, _ := c.Seek(indexToKey(prevIndex + 1)); k != nil; k, _ = c.Next() {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("storage: truncate: %w", err)
	}
	l.lastIndex = prevIndex
	if prevIndex == 0 {
		l.lastTerm = 0
	} else {
		e, _ := l.GetEntry(prevIndex)
		l.lastTerm = e.Term
	}
	return nil
}

func (l *BoltLog) GetCurrentTerm() (uint64, error) {
	var term uint64
	err := l.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(metaBucket).Get(metaTermKey)
		if v != nil {
			term = binary.BigEndian.Uint64(v)
		}
		return nil
	})
	return term, err
}

func (l *BoltLog) GetVotedFor() (raft.PeerID, bool, error) {
	var votedFor raft.PeerID
	var has bool
	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(metaBucket)
		hv := b.Get(metaHasVotedForKey)
		has = len(hv) == 1 && hv[0] == 1
		if has {
			votedFor = raft.PeerID(b.Get(metaVotedForKey))
		}
		return nil
	})
	return votedFor, has, err
}

func (l *BoltLog) SetTermAndVotedFor(term uint64, votedFor raft.PeerID, hasVotedFor bool) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(metaBucket)
		termBytes := make([]byte, 8)
		binary.BigEndian.PutUint64(termBytes, term)
		if err := b.Put(metaTermKey, termBytes); err != nil {
			return err
		}
		hv := byte(0)
		if hasVotedFor {
			hv = 1
		}
		if err := b.Put(metaHasVotedForKey, []byte{hv}); err != nil {
			return err
		}
		return b.Put(metaVotedForKey, []byte(votedFor))
	})
}
