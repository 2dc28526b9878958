package cache

import (
	"context"
	"reflect"

	"github.com/IvanBrykalov/lazycache/internal/deferred"
)

// slot is the envelope every cached value is stored in. typ is the type the
// value was cached for; lookups compare it with the requested type directly.
// A slot holds either a direct value (Add) or a placeholder (GetOrAdd*).
type slot struct {
	typ  reflect.Type
	val  any // direct value
	lazy any // *deferred.Value[T], nil for direct values

	// result returns the completed value, or the zero value of typ when the
	// placeholder never completed.
	result func() any
	state  func() deferred.State
}

func directSlot[T any](v T) *slot {
	return &slot{
		typ:    reflect.TypeFor[T](),
		val:    v,
		result: func() any { return v },
		state:  func() deferred.State { return deferred.Completed },
	}
}

func lazySlot[T any](d *deferred.Value[T]) *slot {
	return &slot{
		typ:  reflect.TypeFor[T](),
		lazy: d,
		result: func() any {
			v, err, ok := d.Peek()
			if !ok || err != nil {
				var zero T
				return zero
			}
			return v
		},
		state: d.State,
	}
}

// failed reports whether the slot's placeholder settled without a value.
func (s *slot) failed() bool {
	st := s.state()
	return st.Settled() && st != deferred.Completed
}

// asSlot returns raw as a slot, or nil for values stored by someone else.
func asSlot(raw any) *slot {
	s, _ := raw.(*slot)
	return s
}

// materialize is the store adapter hook: eviction callbacks see what a slot
// holds, never the slot itself.
func materialize(raw any) any {
	if s := asSlot(raw); s != nil {
		return s.result()
	}
	return raw
}

// unwrap returns the value held by s as a T, forcing a placeholder if
// needed. ok is false when s is nil or was cached for another type.
func unwrap[T any](ctx context.Context, s *slot) (v T, ok bool, err error) {
	if s == nil || s.typ != reflect.TypeFor[T]() {
		return v, false, nil
	}
	if s.lazy == nil {
		return s.val.(T), true, nil
	}
	v, err = s.lazy.(*deferred.Value[T]).Force(ctx)
	return v, true, err
}
