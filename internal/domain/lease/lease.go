// Package lease implements the distributed leader lease: a single record
// in the KV store held by at most one process at a time, with TTL-based
// staleness so a crashed leader's lease can eventually be stolen.
package lease

import (
	"context"
	"errors"
	"sync"
	"time"

	appErrors "github.com/arrowhq/scheduler-core/internal/errors"
	"github.com/arrowhq/scheduler-core/internal/kv"
)

const (
	pkScheduler = "system#scheduler"
	skMain      = "lock#main"
)

// ErrProcessIDRequired indicates a Lease was constructed without a process id.
var ErrProcessIDRequired = errors.New("lease requires a non-empty process id")

// ErrStoreRequired indicates a Lease was constructed without a kv store.
var ErrStoreRequired = errors.New("lease requires a non-nil kv store")

// Holder is the read-only view of the current lease record, used for
// diagnostics.
type Holder struct {
	ProcessID    string
	Timestamp    time.Time
	TTL          time.Time
	InstanceInfo string
	LockType     string
}

// Options configures a Lease.
type Options struct {
	Store kv.Store
	// ProcessID uniquely identifies this process for the life of the lease.
	ProcessID string
	// StaleAfter is the age past which a held lease is eligible to be
	// stolen by a competitor. Default 60s, matching the spec's
	// stale_lease_seconds.
	StaleAfter time.Duration
	// TTL is written into the lease record as a diagnostic absolute expiry;
	// it does not itself gate staleness (StaleAfter does). Default 300s.
	TTL time.Duration
	// InstanceInfo is an opaque diagnostic blob (hostname, version, etc.).
	InstanceInfo string
}

// Lease is the distributed leader lease.
type Lease struct {
	store        kv.Store
	processID    string
	staleAfter   time.Duration
	ttl          time.Duration
	instanceInfo string

	mu       sync.Mutex
	acquired bool
}

// New constructs a Lease.
func New(opts Options) (*Lease, error) {
	if opts.Store == nil {
		return nil, ErrStoreRequired
	}
	if opts.ProcessID == "" {
		return nil, ErrProcessIDRequired
	}

	staleAfter := opts.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 60 * time.Second
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 300 * time.Second
	}

	return &Lease{
		store:        opts.Store,
		processID:    opts.ProcessID,
		staleAfter:   staleAfter,
		ttl:          ttl,
		instanceInfo: opts.InstanceInfo,
	}, nil
}

// ProcessID returns this lease's process id.
func (l *Lease) ProcessID() string {
	return l.processID
}

// Acquired reports whether this process currently believes it holds the lease.
func (l *Lease) Acquired() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acquired
}

func (l *Lease) key() kv.Key {
	return kv.Key{PK: pkScheduler, SK: skMain}
}

// Acquire attempts to take the lease at instant now: the write succeeds if
// no lease record exists yet, or if the existing one is stale. Returns
// true on success, false if another process holds a live lease
// (ConditionFailed).
func (l *Lease) Acquire(ctx context.Context, now time.Time) (bool, error) {
	staleCutoff := now.Add(-l.staleAfter)

	cond := kv.Or(
		kv.AttrNotExists("timestamp"),
		kv.LessOrEqual("timestamp", staleCutoff),
	)

	err := l.store.Put(ctx, l.key(), kv.Item{
		"process_id":    l.processID,
		"timestamp":     now.UTC(),
		"ttl":           now.Add(l.ttl).UTC(),
		"instance_info": l.instanceInfo,
		"lock_type":     "scheduler",
	}, cond)

	l.mu.Lock()
	defer l.mu.Unlock()

	if err == nil {
		l.acquired = true
		return true, nil
	}
	if appErrors.IsConditionFailed(err) {
		l.acquired = false
		return false, nil
	}
	return false, err
}

// Refresh extends the lease if this process currently holds it. On a lost
// lease (ConditionFailed, meaning some other process's write won), it
// marks the local state unacquired and returns false without error.
func (l *Lease) Refresh(ctx context.Context, now time.Time) (bool, error) {
	l.mu.Lock()
	wasAcquired := l.acquired
	l.mu.Unlock()
	if !wasAcquired {
		return false, nil
	}

	err := l.store.Update(ctx, l.key(), kv.Item{
		"timestamp": now.UTC(),
		"ttl":       now.Add(l.ttl).UTC(),
	}, kv.Equals("process_id", l.processID))

	l.mu.Lock()
	defer l.mu.Unlock()

	if err == nil {
		return true, nil
	}
	if appErrors.IsConditionFailed(err) {
		l.acquired = false
		return false, nil
	}
	return false, err
}

// Release gives up the lease if this process holds it. A ConditionFailed
// (someone else already stole it) is swallowed; local state is always
// cleared.
func (l *Lease) Release(ctx context.Context) error {
	defer func() {
		l.mu.Lock()
		l.acquired = false
		l.mu.Unlock()
	}()

	err := l.store.Delete(ctx, l.key(), kv.Equals("process_id", l.processID))
	if err != nil && !appErrors.IsConditionFailed(err) {
		return err
	}
	return nil
}

// GetCurrentHolder is a read-only diagnostic returning the current lease
// record, if any.
func (l *Lease) GetCurrentHolder(ctx context.Context) (Holder, bool, error) {
	item, ok, err := l.store.Get(ctx, l.key())
	if err != nil || !ok {
		return Holder{}, ok, err
	}

	h := Holder{}
	h.ProcessID, _ = item["process_id"].(string)
	h.InstanceInfo, _ = item["instance_info"].(string)
	h.LockType, _ = item["lock_type"].(string)
	if ts, ok := item["timestamp"].(time.Time); ok {
		h.Timestamp = ts
	}
	if ttl, ok := item["ttl"].(time.Time); ok {
		h.TTL = ttl
	}
	return h, true, nil
}

