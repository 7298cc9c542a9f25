// Package kv defines the narrow key-value abstraction every higher-level
// scheduler-core component is built on: conditional put, conditional update,
// get, delete, and a range query over a composite (PK, SK) key with a
// server-side filter. Concrete backends live in sibling packages (memkv,
// rediskv); everything above this package deals only in the domain errors
// from internal/errors, never in a backend-specific error type.
package kv

import (
	"context"
)

// Item is an attribute map, modeling a DynamoDB-style item. Values are
// JSON-marshalable; callers are responsible for the shape of their own
// attributes.
type Item map[string]any

// Key identifies a single item by its composite primary key.
type Key struct {
	PK string
	SK string
}

// CondOp names a condition operator.
type CondOp int

const (
	// OpAttrNotExists holds when the named attribute is absent from the item
	// (or the item itself does not exist).
	OpAttrNotExists CondOp = iota
	// OpAttrExists holds when the named attribute is present.
	OpAttrExists
	// OpEquals holds when the named attribute equals Value.
	OpEquals
	// OpLessOrEqual holds when the named attribute is present and <= Value.
	// Values are compared as strings (lexicographic) or as time.Time/numeric
	// per Go's ordered comparison, depending on the attribute's stored type.
	OpLessOrEqual
	// OpAnd holds when every sub-condition holds.
	OpAnd
	// OpOr holds when any sub-condition holds.
	OpOr
)

// Condition is a small expression over attribute presence/absence and value
// comparison, evaluated against an item's current state (or its absence).
type Condition struct {
	Op    CondOp
	Attr  string
	Value any
	Subs  []Condition
}

// AttrNotExists builds a condition requiring attr to be absent.
func AttrNotExists(attr string) Condition {
	return Condition{Op: OpAttrNotExists, Attr: attr}
}

// AttrExists builds a condition requiring attr to be present.
func AttrExists(attr string) Condition {
	return Condition{Op: OpAttrExists, Attr: attr}
}

// Equals builds a condition requiring attr to equal value.
func Equals(attr string, value any) Condition {
	return Condition{Op: OpEquals, Attr: attr, Value: value}
}

// LessOrEqual builds a condition requiring attr to be present and <= value.
func LessOrEqual(attr string, value any) Condition {
	return Condition{Op: OpLessOrEqual, Attr: attr, Value: value}
}

// And combines conditions with logical AND. An empty And always holds.
func And(conds ...Condition) Condition {
	return Condition{Op: OpAnd, Subs: conds}
}

// Or combines conditions with logical OR. An empty Or never holds.
func Or(conds ...Condition) Condition {
	return Condition{Op: OpOr, Subs: conds}
}

// NoCondition is the always-true condition, used for unconditional writes.
func NoCondition() Condition {
	return Condition{Op: OpAnd}
}

// Range bounds a sort-key range query: items with PK equal to the query's
// pk and SK in [From, To] (both inclusive; From may be empty for open-ended
// lower bound).
type Range struct {
	From string
	To   string
}

// Filter is evaluated server-side (from the abstraction's point of view)
// against each item already selected by the PK/SK range, before Limit is
// applied.
type Filter = Condition

// QueryInput describes a range query.
type QueryInput struct {
	PK     string
	SK     Range
	Filter Filter
	Limit  int
	// Descending, when true, returns items ordered by SK descending; the
	// zero value (false) orders them by SK ascending.
	Descending bool
}

// Store is the narrow KV abstraction every scheduler-core component depends
// on. Implementations translate backend-specific failures into
// internal/errors.AppError values: a failed condition becomes
// ErrCodeConditionFailed, anything else unexpected becomes
// ErrCodeTransientStore.
type Store interface {
	// Put writes item at key unconditionally if cond holds against the
	// current (possibly absent) item; otherwise returns a ConditionFailed
	// error.
	Put(ctx context.Context, key Key, item Item, cond Condition) error

	// Update applies the attribute sets in "sets" to the item at key if cond
	// holds; the item must already exist for Update to be meaningful (most
	// callers additionally guard with AttrExists or an equality condition).
	Update(ctx context.Context, key Key, sets Item, cond Condition) error

	// Get reads the item at key. ok is false if no item exists there.
	Get(ctx context.Context, key Key) (item Item, ok bool, err error)

	// Delete removes the item at key if cond holds.
	Delete(ctx context.Context, key Key, cond Condition) error

	// Query returns items matching the PK/SK range and filter, up to Limit.
	Query(ctx context.Context, in QueryInput) ([]Item, error)
}
