package gateway

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var nodesBucket = []byte("nodes")

// ErrUnknownNode is returned for ids never heard from
var ErrUnknownNode = errors.New("gateway: unknown node")

// Battery is the last battery reading of a node
type Battery struct {
	Timestamp    uint32 `json:"timestamp"`
	MilliVolts   uint32 `json:"milliVolts"`
	TemperatureC int32  `json:"temperatureC"`
}

// Register is the last value a node reported for one register
type Register struct {
	Value     uint32    `json:"value"`
	OK        bool      `json:"ok"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Node is what the gateway knows about one leaf
type Node struct {
	ID        uint32              `json:"id"`
	FirstSeen time.Time           `json:"firstSeen"`
	LastSeen  time.Time           `json:"lastSeen"`
	RSSI      int8                `json:"rssi"`
	Frames    uint32              `json:"frames"`
	Battery   *Battery            `json:"battery,omitempty"`
	Registers map[uint16]Register `json:"registers,omitempty"`
}

// Registry stores nodes in a bbolt bucket keyed by big-endian id
type Registry struct {
	db *bbolt.DB
}

// OpenRegistry opens or creates the database at path
func OpenRegistry(path string) (*Registry, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(nodesBucket); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Registry{db: db}, nil
}

// Close closes the database
func (r *Registry) Close() error {
	return r.db.Close()
}

func nodeKey(id uint32) []byte {
	k := make([]byte, 4)
	binary.BigEndian.PutUint32(k, id)
	return k
}

// Update applies fn to the node, creating it on first contact
func (r *Registry) Update(id uint32, now time.Time, fn func(n *Node)) (Node, error) {
	var n Node
	err := r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(nodesBucket)
		key := nodeKey(id)
		if v := b.Get(key); v != nil {
			if err := json.Unmarshal(v, &n); err != nil {
				return fmt.Errorf("decode node %d: %w", id, err)
			}
		} else {
			n = Node{ID: id, FirstSeen: now}
		}
		n.LastSeen = now
		if fn != nil {
			fn(&n)
		}
		v, err := json.Marshal(&n)
		if err != nil {
			return err
		}
		return b.Put(key, v)
	})
	return n, err
}

// Get returns one node
func (r *Registry) Get(id uint32) (Node, error) {
	var n Node
	err := r.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(nodesBucket).Get(nodeKey(id))
		if v == nil {
			return ErrUnknownNode
		}
		return json.Unmarshal(v, &n)
	})
	return n, err
}

// List returns all nodes ordered by id
func (r *Registry) List() ([]Node, error) {
	nodes := []Node{}
	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(nodesBucket).ForEach(func(k, v []byte) error {
			var n Node
			if err := json.Unmarshal(v, &n); err != nil {
				return fmt.Errorf("decode node %d: %w", binary.BigEndian.Uint32(k), err)
			}
			nodes = append(nodes, n)
			return nil
		})
	})
	return nodes, err
}

// Prune deletes nodes not heard from since before and returns how many
func (r *Registry) Prune(before time.Time) (int, error) {
	removed := 0
	err := r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(nodesBucket)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var n Node
			if err := json.Unmarshal(v, &n); err != nil || n.LastSeen.Before(before) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}
