// Package memkv is an in-process implementation of kv.Store backed by a
// guarded map. It exists for deterministic unit and integration tests of
// the scheduler-core domain packages, and is a legitimate single-process
// deployment backend in its own right.
package memkv

import (
	"context"
	"sort"
	"sync"

	appErrors "github.com/arrowhq/scheduler-core/internal/errors"
	"github.com/arrowhq/scheduler-core/internal/kv"
)

type entry struct {
	pk, sk string
	item   kv.Item
}

// Store is an in-memory kv.Store. The zero value is not usable; construct
// with New.
type Store struct {
	mu    sync.Mutex
	items map[string]*entry // key: pk + "\x00" + sk
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{items: make(map[string]*entry)}
}

func compositeKey(pk, sk string) string {
	return pk + "\x00" + sk
}

func cloneItem(item kv.Item) kv.Item {
	if item == nil {
		return nil
	}
	out := make(kv.Item, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func (s *Store) Put(_ context.Context, key kv.Key, item kv.Item, cond kv.Condition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ck := compositeKey(key.PK, key.SK)
	existing := s.items[ck]
	var existingItem kv.Item
	if existing != nil {
		existingItem = existing.item
	}
	if !kv.Eval(cond, existingItem) {
		return appErrors.ConditionFailedf("put condition failed for key %s/%s", key.PK, key.SK)
	}
	s.items[ck] = &entry{pk: key.PK, sk: key.SK, item: cloneItem(item)}
	return nil
}

func (s *Store) Update(_ context.Context, key kv.Key, sets kv.Item, cond kv.Condition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ck := compositeKey(key.PK, key.SK)
	existing := s.items[ck]
	var existingItem kv.Item
	if existing != nil {
		existingItem = existing.item
	}
	if !kv.Eval(cond, existingItem) {
		return appErrors.ConditionFailedf("update condition failed for key %s/%s", key.PK, key.SK)
	}

	merged := cloneItem(existingItem)
	if merged == nil {
		merged = kv.Item{}
	}
	for k, v := range sets {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	s.items[ck] = &entry{pk: key.PK, sk: key.SK, item: merged}
	return nil
}

func (s *Store) Get(_ context.Context, key kv.Key) (kv.Item, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.items[compositeKey(key.PK, key.SK)]
	if !ok {
		return nil, false, nil
	}
	return cloneItem(existing.item), true, nil
}

func (s *Store) Delete(_ context.Context, key kv.Key, cond kv.Condition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ck := compositeKey(key.PK, key.SK)
	existing := s.items[ck]
	var existingItem kv.Item
	if existing != nil {
		existingItem = existing.item
	}
	if !kv.Eval(cond, existingItem) {
		return appErrors.ConditionFailedf("delete condition failed for key %s/%s", key.PK, key.SK)
	}
	delete(s.items, ck)
	return nil
}

func (s *Store) Query(_ context.Context, in kv.QueryInput) ([]kv.Item, error) {
	s.mu.Lock()
	matches := make([]*entry, 0)
	for _, e := range s.items {
		if e.pk != in.PK {
			continue
		}
		if in.SK.From != "" && e.sk < in.SK.From {
			continue
		}
		if in.SK.To != "" && e.sk > in.SK.To {
			continue
		}
		matches = append(matches, e)
	}
	s.mu.Unlock()

	sort.Slice(matches, func(i, j int) bool {
		if in.Descending {
			return matches[i].sk > matches[j].sk
		}
		return matches[i].sk < matches[j].sk
	})

	out := make([]kv.Item, 0, len(matches))
	for _, e := range matches {
		if !kv.Eval(in.Filter, e.item) {
			continue
		}
		out = append(out, cloneItem(e.item))
		if in.Limit > 0 && len(out) >= in.Limit {
			break
		}
	}
	return out, nil
}
