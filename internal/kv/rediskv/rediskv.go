// Package rediskv implements kv.Store against Redis, used as the
// production coordination backend when more than one process shares a
// table. Items are stored as JSON strings keyed by pk/sk; a per-PK sorted
// set tracks SK membership so range queries can use ZRANGEBYLEX, which is
// Redis's lexicographic analogue of a DynamoDB sort-key range.
//
// Conditional writes use go-redis's optimistic-transaction helper
// (WATCH/MULTI/EXEC via Client.Watch): read the current item, evaluate the
// condition in Go, then commit the write inside the transaction so a
// concurrent writer that changed the watched key between the read and the
// commit aborts our transaction and we retry the read-evaluate-commit
// cycle. This is the same compare-and-swap shape a DynamoDB
// ConditionExpression provides, just expressed with Redis's own primitives
// instead of emulated client-side over an unconditional write.
package rediskv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	appErrors "github.com/arrowhq/scheduler-core/internal/errors"
	"github.com/arrowhq/scheduler-core/internal/kv"
)

// Store is a Redis-backed kv.Store.
type Store struct {
	client redis.UniversalClient
	// KeyPrefix namespaces every Redis key this store touches, so multiple
	// tables (or environments) can share one Redis instance.
	keyPrefix string
}

// New returns a Store using client, namespacing all keys under tableName.
func New(client redis.UniversalClient, tableName string) *Store {
	return &Store{client: client, keyPrefix: tableName}
}

func (s *Store) itemKey(pk, sk string) string {
	return fmt.Sprintf("%s:item:%s:%s", s.keyPrefix, pk, sk)
}

func (s *Store) indexKey(pk string) string {
	return fmt.Sprintf("%s:idx:%s", s.keyPrefix, pk)
}

func (s *Store) readItem(ctx context.Context, pk, sk string) (kv.Item, error) {
	raw, err := s.client.Get(ctx, s.itemKey(pk, sk)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, appErrors.Wrapf(err, appErrors.ErrCodeTransientStore, "get %s/%s", pk, sk)
	}
	var item kv.Item
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, appErrors.Wrapf(err, appErrors.ErrCodeTransientStore, "decode %s/%s", pk, sk)
	}
	return item, nil
}

// Put implements kv.Store.
func (s *Store) Put(ctx context.Context, key kv.Key, item kv.Item, cond kv.Condition) error {
	return s.transact(ctx, key, func(current kv.Item) (kv.Item, bool) {
		if !kv.Eval(cond, current) {
			return nil, false
		}
		return item, true
	})
}

// Update implements kv.Store.
func (s *Store) Update(ctx context.Context, key kv.Key, sets kv.Item, cond kv.Condition) error {
	return s.transact(ctx, key, func(current kv.Item) (kv.Item, bool) {
		if !kv.Eval(cond, current) {
			return nil, false
		}
		merged := make(kv.Item, len(current)+len(sets))
		for k, v := range current {
			merged[k] = v
		}
		for k, v := range sets {
			if v == nil {
				delete(merged, k)
				continue
			}
			merged[k] = v
		}
		return merged, true
	})
}

// Delete implements kv.Store.
func (s *Store) Delete(ctx context.Context, key kv.Key, cond kv.Condition) error {
	return s.transact(ctx, key, func(current kv.Item) (kv.Item, bool) {
		if !kv.Eval(cond, current) {
			return nil, false
		}
		return nil, true
	})
}

// transact runs a WATCH/MULTI/EXEC cycle over key: it reads the current
// item, asks mutate to decide the new state (nil new item means delete),
// and commits. mutate returning ok=false means the condition failed; this
// is reported as ConditionFailed without retrying. A concurrent writer
// changing the watched key between read and commit aborts the EXEC
// (redis.TxFailedErr), and the whole read-evaluate-commit cycle is run
// again, up to maxTransactAttempts times in all; an abort on the last
// attempt is reported as TransientStore.
func (s *Store) transact(ctx context.Context, key kv.Key, mutate func(current kv.Item) (kv.Item, bool)) error {
	const maxTransactAttempts = 10
	itemKey := s.itemKey(key.PK, key.SK)
	idxKey := s.indexKey(key.PK)

	var conditionFailed bool
	txFn := func(tx *redis.Tx) error {
		conditionFailed = false
		current, err := s.readItem(ctx, key.PK, key.SK)
		if err != nil {
			return err
		}

		next, ok := mutate(current)
		if !ok {
			conditionFailed = true
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil {
				pipe.Del(ctx, itemKey)
				pipe.ZRem(ctx, idxKey, key.SK)
				return nil
			}
			raw, marshalErr := json.Marshal(next)
			if marshalErr != nil {
				return marshalErr
			}
			pipe.Set(ctx, itemKey, raw, 0)
			pipe.ZAdd(ctx, idxKey, redis.Z{Score: 0, Member: key.SK})
			return nil
		})
		return err
	}

	var txErr error
	for attempt := 0; attempt < maxTransactAttempts; attempt++ {
		txErr = s.client.Watch(ctx, txFn, itemKey)
		if !errors.Is(txErr, redis.TxFailedErr) {
			break
		}
	}
	if txErr != nil {
		return appErrors.Wrapf(txErr, appErrors.ErrCodeTransientStore, "transact %s/%s", key.PK, key.SK)
	}
	if conditionFailed {
		return appErrors.ConditionFailedf("condition failed for key %s/%s", key.PK, key.SK)
	}
	return nil
}

// Get implements kv.Store.
func (s *Store) Get(ctx context.Context, key kv.Key) (kv.Item, bool, error) {
	item, err := s.readItem(ctx, key.PK, key.SK)
	if err != nil {
		return nil, false, err
	}
	return item, item != nil, nil
}

// Query implements kv.Store. It reads SK membership from the per-PK sorted
// set via ZRANGEBYLEX, then fetches and filters each candidate item.
func (s *Store) Query(ctx context.Context, in kv.QueryInput) ([]kv.Item, error) {
	min := "-"
	if in.SK.From != "" {
		min = "[" + in.SK.From
	}
	max := "+"
	if in.SK.To != "" {
		max = "[" + in.SK.To
	}

	var sks []string
	var err error
	if in.Descending {
		sks, err = s.client.ZRevRangeByLex(ctx, s.indexKey(in.PK), &redis.ZRangeBy{Min: min, Max: max}).Result()
	} else {
		sks, err = s.client.ZRangeByLex(ctx, s.indexKey(in.PK), &redis.ZRangeBy{Min: min, Max: max}).Result()
	}
	if err != nil {
		return nil, appErrors.Wrapf(err, appErrors.ErrCodeTransientStore, "query pk=%s", in.PK)
	}

	out := make([]kv.Item, 0, len(sks))
	for _, sk := range sks {
		item, err := s.readItem(ctx, in.PK, sk)
		if err != nil {
			return nil, err
		}
		if item == nil {
			// Index and item store raced; skip a stale index entry.
			continue
		}
		if !kv.Eval(in.Filter, item) {
			continue
		}
		out = append(out, item)
		if in.Limit > 0 && len(out) >= in.Limit {
			break
		}
	}
	return out, nil
}
