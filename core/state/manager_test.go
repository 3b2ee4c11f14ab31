package state

import (
	"math/big"
	"testing"

	"dinechain/storage"
)

type record struct {
	Name   string
	Amount *big.Int
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return NewManager(db)
}

func TestJournalCommitPersists(t *testing.T) {
	mgr := newTestManager(t)

	j := mgr.Begin()
	if err := j.KVPut([]byte("r/1"), &record{Name: "one", Amount: big.NewInt(7)}); err != nil {
		t.Fatalf("put: %v", err)
	}

	var got record
	ok, err := j.KVGet([]byte("r/1"), &got)
	if err != nil || !ok {
		t.Fatalf("journal read: ok=%v err=%v", ok, err)
	}
	if got.Name != "one" || got.Amount.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("unexpected journal value: %+v", got)
	}

	ok, err = mgr.KVGet([]byte("r/1"), &got)
	if err != nil {
		t.Fatalf("manager read: %v", err)
	}
	if ok {
		t.Fatalf("uncommitted write visible through manager")
	}

	if err := j.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	var committed record
	ok, err = mgr.KVGet([]byte("r/1"), &committed)
	if err != nil || !ok {
		t.Fatalf("committed read: ok=%v err=%v", ok, err)
	}
	if committed.Amount.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("unexpected committed amount %s", committed.Amount)
	}
}

func TestJournalDiscardDropsWrites(t *testing.T) {
	mgr := newTestManager(t)

	seed := mgr.Begin()
	if err := seed.KVPut([]byte("keep"), uint64(1)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := seed.Commit(); err != nil {
		t.Fatalf("seed commit: %v", err)
	}

	j := mgr.Begin()
	if err := j.KVPut([]byte("drop"), uint64(2)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := j.KVDelete([]byte("keep")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var v uint64
	if ok, _ := j.KVGet([]byte("keep"), &v); ok {
		t.Fatalf("deleted key still visible inside journal")
	}
	j.Discard()

	if ok, _ := mgr.KVGet([]byte("drop"), &v); ok {
		t.Fatalf("discarded write persisted")
	}
	if ok, _ := mgr.KVGet([]byte("keep"), &v); !ok || v != 1 {
		t.Fatalf("discarded delete took effect: ok=%v v=%d", ok, v)
	}
	if err := j.KVPut([]byte("late"), uint64(3)); err != ErrJournalClosed {
		t.Fatalf("expected ErrJournalClosed, got %v", err)
	}
}

func TestJournalAppendDeduplicates(t *testing.T) {
	mgr := newTestManager(t)
	j := mgr.Begin()
	for _, v := range [][]byte{{1}, {2}, {1}, {3}} {
		if err := j.KVAppend([]byte("idx"), v); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := j.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	var list [][]byte
	if err := mgr.KVGetList([]byte("idx"), &list); err != nil {
		t.Fatalf("get list: %v", err)
	}
	if len(list) != 3 || list[0][0] != 1 || list[1][0] != 2 || list[2][0] != 3 {
		t.Fatalf("unexpected list %v", list)
	}

	var empty [][]byte
	if err := mgr.KVGetList([]byte("missing"), &empty); err != nil {
		t.Fatalf("missing list: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", empty)
	}
}

func TestKVRejectsEmptyKey(t *testing.T) {
	mgr := newTestManager(t)
	if _, err := mgr.KVGet(nil, nil); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if err := mgr.Begin().KVPut(nil, uint64(1)); err == nil {
		t.Fatalf("expected error for empty key")
	}
}
