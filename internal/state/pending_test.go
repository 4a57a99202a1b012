package state

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
)

type memoryStore struct {
	mu    sync.Mutex
	items map[string]string
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.items[key]
	return val, ok, nil
}

func (m *memoryStore) Set(ctx context.Context, key, value string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = make(map[string]string)
	}
	m.items[key] = value
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *memoryStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for key := range m.items {
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memoryStore) Close() error { return nil }

func TestPendingTxRoundTrip(t *testing.T) {
	store := &memoryStore{}
	ctx := context.Background()
	entry := PendingTx{
		Key:           "approve:abc",
		Action:        "approve",
		Hash:          "0x01",
		ChainID:       84532,
		Target:        "0x00000000000000000000000000000000000000c1",
		Phase:         "submitted",
		SubmittedAtMS: 1000,
	}
	if err := SavePendingTx(ctx, store, entry); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, ok, err := LoadPendingTx(ctx, store, "approve:abc")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if loaded != entry {
		t.Fatalf("unexpected entry %+v", loaded)
	}
	if err := DeletePendingTx(ctx, store, "approve:abc"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := LoadPendingTx(ctx, store, "approve:abc"); ok {
		t.Fatalf("expected entry to be deleted")
	}
}

func TestListPendingTxsOrdersBySubmission(t *testing.T) {
	store := &memoryStore{}
	ctx := context.Background()
	_ = SavePendingTx(ctx, store, PendingTx{Key: "b", SubmittedAtMS: 20})
	_ = SavePendingTx(ctx, store, PendingTx{Key: "a", SubmittedAtMS: 30})
	_ = SavePendingTx(ctx, store, PendingTx{Key: "c", SubmittedAtMS: 10})
	_ = store.Set(ctx, "other:key", "value")
	list, err := ListPendingTxs(ctx, store)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].Key != "c" || list[1].Key != "b" || list[2].Key != "a" {
		t.Fatalf("unexpected order %+v", list)
	}
}

func TestPendingTxNilStore(t *testing.T) {
	if err := SavePendingTx(context.Background(), nil, PendingTx{Key: "x"}); err != nil {
		t.Fatalf("expected nil store to be a no-op, got %v", err)
	}
	if _, ok, err := LoadPendingTx(context.Background(), nil, "x"); ok || err != nil {
		t.Fatalf("expected empty load from nil store")
	}
}

func TestSavePendingTxRequiresKey(t *testing.T) {
	if err := SavePendingTx(context.Background(), &memoryStore{}, PendingTx{}); err == nil {
		t.Fatalf("expected error for empty key")
	}
}
