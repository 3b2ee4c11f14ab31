package state

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"dinechain/storage"
)

var kvPrefix = []byte("kv/")

// ErrJournalClosed is returned when a journal is used after Commit or Discard.
var ErrJournalClosed = errors.New("state: journal closed")

// Manager provides RLP-encoded key/value access to committed chain state.
// Keys are hashed with keccak256 before they reach the database so callers can
// use arbitrary structured keys.
//
// Manager reads are safe for concurrent use. Writes only happen through a
// Journal, and the node guarantees a single open journal at a time.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func kvKey(key []byte) []byte {
	hashed := ethcrypto.Keccak256(key)
	out := make([]byte, 0, len(kvPrefix)+len(hashed))
	out = append(out, kvPrefix...)
	return append(out, hashed...)
}

func (m *Manager) raw(hashed []byte) ([]byte, error) {
	data, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.raw(kvKey(key))
	if err != nil {
		return false, err
	}
	return decodeValue(data, out)
}

// KVGetList decodes the RLP list stored under key into out. A missing key
// yields an empty slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.raw(kvKey(key))
	if err != nil {
		return err
	}
	return decodeList(data, out)
}

// Begin opens a write journal on top of the committed state.
func (m *Manager) Begin() *Journal {
	return &Journal{
		m:      m,
		writes: make(map[string][]byte),
		order:  make([]string, 0, 8),
	}
}

// Journal buffers state writes for a single transaction. Reads observe the
// buffered writes first. Nothing reaches the database until Commit, which
// applies every write in one storage batch; Discard drops them.
type Journal struct {
	m      *Manager
	writes map[string][]byte // nil value marks a deletion
	order  []string
	closed bool
}

func (j *Journal) lookup(hashed []byte) ([]byte, error) {
	if v, ok := j.writes[string(hashed)]; ok {
		return v, nil
	}
	return j.m.raw(hashed)
}

func (j *Journal) set(hashed []byte, value []byte) {
	k := string(hashed)
	if _, ok := j.writes[k]; !ok {
		j.order = append(j.order, k)
	}
	j.writes[k] = value
}

// KVGet mirrors Manager.KVGet but observes uncommitted writes.
func (j *Journal) KVGet(key []byte, out interface{}) (bool, error) {
	if j.closed {
		return false, ErrJournalClosed
	}
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := j.lookup(kvKey(key))
	if err != nil {
		return false, err
	}
	return decodeValue(data, out)
}

// KVGetList mirrors Manager.KVGetList but observes uncommitted writes.
func (j *Journal) KVGetList(key []byte, out interface{}) error {
	if j.closed {
		return ErrJournalClosed
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	data, err := j.lookup(kvKey(key))
	if err != nil {
		return err
	}
	return decodeList(data, out)
}

// KVPut RLP-encodes value and stores it under key.
func (j *Journal) KVPut(key []byte, value interface{}) error {
	if j.closed {
		return ErrJournalClosed
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	j.set(kvKey(key), encoded)
	return nil
}

// KVDelete removes key from state.
func (j *Journal) KVDelete(key []byte) error {
	if j.closed {
		return ErrJournalClosed
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	j.set(kvKey(key), nil)
	return nil
}

// KVAppend appends the provided value to the RLP-encoded byte slice list stored
// under the supplied key. Duplicate values are ignored to keep the index
// deterministic.
func (j *Journal) KVAppend(key []byte, value []byte) error {
	if j.closed {
		return ErrJournalClosed
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	hashed := kvKey(key)
	data, err := j.lookup(hashed)
	if err != nil {
		return err
	}
	var list [][]byte
	if len(data) > 0 {
		if err := rlp.DecodeBytes(data, &list); err != nil {
			return err
		}
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	j.set(hashed, encoded)
	return nil
}

// Dirty reports the number of pending writes.
func (j *Journal) Dirty() int {
	return len(j.order)
}

// Commit writes all buffered changes atomically and closes the journal.
func (j *Journal) Commit() error {
	if j.closed {
		return ErrJournalClosed
	}
	j.closed = true
	if len(j.order) == 0 {
		return nil
	}
	batch := j.m.db.NewBatch()
	for _, k := range j.order {
		value := j.writes[k]
		if value == nil {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), value)
	}
	return batch.Write()
}

// Discard drops all buffered changes and closes the journal.
func (j *Journal) Discard() {
	j.closed = true
	j.writes = nil
	j.order = nil
}

func decodeValue(data []byte, out interface{}) (bool, error) {
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func decodeList(data []byte, out interface{}) error {
	if len(data) == 0 {
		val := reflect.ValueOf(out)
		if val.Kind() != reflect.Ptr || val.IsNil() {
			return fmt.Errorf("kv: destination must be a non-nil pointer")
		}
		elem := val.Elem()
		if elem.Kind() != reflect.Slice {
			return fmt.Errorf("kv: destination must point to a slice")
		}
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}
