package state

import (
	"context"
	"encoding/base64"
	"errors"
	"sort"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

const PendingTxPrefix = "tx:pending:"

// PendingTx is the journal entry for one submitted transaction of a logical
// action. Entries survive a dismissed workflow so the operator can still see
// what is in flight.
type PendingTx struct {
	Key           string `msgpack:"key"`
	Action        string `msgpack:"action"`
	Hash          string `msgpack:"hash"`
	ChainID       uint64 `msgpack:"chain_id"`
	Target        string `msgpack:"target"`
	Phase         string `msgpack:"phase"`
	Error         string `msgpack:"error,omitempty"`
	SubmittedAtMS int64  `msgpack:"submitted_at_ms"`
	UpdatedAtMS   int64  `msgpack:"updated_at_ms"`
}

func pendingKey(key string) string {
	return PendingTxPrefix + key
}

func SavePendingTx(ctx context.Context, store Store, entry PendingTx) error {
	if store == nil {
		return nil
	}
	if strings.TrimSpace(entry.Key) == "" {
		return errors.New("pending tx key is required")
	}
	payload, err := msgpack.Marshal(entry)
	if err != nil {
		return err
	}
	return store.Set(ctx, pendingKey(entry.Key), base64.StdEncoding.EncodeToString(payload))
}

func LoadPendingTx(ctx context.Context, store Store, key string) (PendingTx, bool, error) {
	if store == nil {
		return PendingTx{}, false, nil
	}
	raw, ok, err := store.Get(ctx, pendingKey(key))
	if err != nil {
		return PendingTx{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return PendingTx{}, false, nil
	}
	entry, err := decodePendingTx(raw)
	if err != nil {
		return PendingTx{}, false, err
	}
	return entry, true, nil
}

func DeletePendingTx(ctx context.Context, store Store, key string) error {
	if store == nil {
		return nil
	}
	return store.Delete(ctx, pendingKey(key))
}

// ListPendingTxs returns every journal entry, oldest submission first.
func ListPendingTxs(ctx context.Context, store Store) ([]PendingTx, error) {
	if store == nil {
		return nil, nil
	}
	keys, err := store.Keys(ctx, PendingTxPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]PendingTx, 0, len(keys))
	for _, key := range keys {
		raw, ok, err := store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		entry, err := decodePendingTx(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SubmittedAtMS != out[j].SubmittedAtMS {
			return out[i].SubmittedAtMS < out[j].SubmittedAtMS
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

func decodePendingTx(raw string) (PendingTx, error) {
	payload, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return PendingTx{}, err
	}
	var entry PendingTx
	if err := msgpack.Unmarshal(payload, &entry); err != nil {
		return PendingTx{}, err
	}
	return entry, nil
}
