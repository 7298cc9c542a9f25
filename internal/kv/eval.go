package kv

import (
	"fmt"
	"time"
)

// Eval reports whether cond holds against item. A nil item models an absent
// item (PK, SK) pair, matching DynamoDB's attribute_not_exists(PK) idiom for
// "this key has never been written."
func Eval(cond Condition, item Item) bool {
	switch cond.Op {
	case OpAttrNotExists:
		if item == nil {
			return true
		}
		if isKeyAttr(cond.Attr) {
			return false
		}
		_, present := item[cond.Attr]
		return !present
	case OpAttrExists:
		if item == nil {
			return false
		}
		if isKeyAttr(cond.Attr) {
			return true
		}
		_, present := item[cond.Attr]
		return present
	case OpEquals:
		if item == nil {
			return false
		}
		v, present := item[cond.Attr]
		return present && equalValues(v, cond.Value)
	case OpLessOrEqual:
		if item == nil {
			return false
		}
		v, present := item[cond.Attr]
		if !present {
			return false
		}
		le, ok := lessOrEqual(v, cond.Value)
		return ok && le
	case OpAnd:
		for _, sub := range cond.Subs {
			if !Eval(sub, item) {
				return false
			}
		}
		return true
	case OpOr:
		if len(cond.Subs) == 0 {
			return false
		}
		for _, sub := range cond.Subs {
			if Eval(sub, item) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// isKeyAttr reports whether attr names a key attribute (PK or SK), which
// every stored item has even though its Item map does not carry it.
func isKeyAttr(attr string) bool {
	return attr == "PK" || attr == "SK"
}

func equalValues(a, b any) bool {
	at, aok := a.(time.Time)
	bt, bok := b.(time.Time)
	if aok && bok {
		return at.Equal(bt)
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func lessOrEqual(a, b any) (bool, bool) {
	// A kv.Store that round-trips items through JSON (rediskv) decodes a
	// stored time.Time back into a plain RFC3339 string, while the
	// condition's right-hand side is still a native time.Time supplied by
	// the caller (and a Store that never serializes, like memkv, keeps the
	// attribute as a time.Time on both sides). Compare via time.Time
	// whenever either side parses as one, so the comparison is stable
	// across backends regardless of how the stored value got encoded.
	if at, aok := asTime(a); aok {
		if bt, bok := asTime(b); bok {
			return !at.After(bt), true
		}
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return false, false
		}
		return av <= bv, true
	case int:
		bv, ok := b.(int)
		if !ok {
			return false, false
		}
		return av <= bv, true
	case int64:
		bv, ok := b.(int64)
		if !ok {
			return false, false
		}
		return av <= bv, true
	default:
		return false, false
	}
}

// asTime reports whether v is a time.Time, or a string holding one encoded
// the way encoding/json renders time.Time (RFC3339Nano).
func asTime(v any) (time.Time, bool) {
	switch tv := v.(type) {
	case time.Time:
		return tv, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, tv)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	default:
		return time.Time{}, false
	}
}
