package state

import (
	"fmt"
	"maps"
	"math"
	"slices"
)

// Value is a sealed interface over the node types of a state tree.
// Only Null, String, Int, Float, Bool, *Array and *Object implement it.
//
// Every implementation is comparable, so == on two Values never panics and
// behaves like Same.
type Value interface {
	stateValue() // Sealed - only these types implement it
}

// Null is the absent/empty value. Reading a missing key yields Null.
type Null struct{}

func (Null) stateValue() {}

// MarshalJSON renders Null as the JSON null literal.
func (Null) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// String is a string leaf.
type String string

func (String) stateValue() {}

// Int is an integer leaf.
type Int int64

func (Int) stateValue() {}

// Float is a floating point leaf.
type Float float64

func (Float) stateValue() {}

// Bool is a boolean leaf.
type Bool bool

func (Bool) stateValue() {}

// Array is an immutable ordered list of values.
// The zero value is an empty array.
type Array struct {
	items []Value
}

func (*Array) stateValue() {}

// Object is an immutable string-keyed record.
// The zero value is an empty object.
type Object struct {
	fields map[string]Value
}

func (*Object) stateValue() {}

// Pair is a key-value pair for Object construction.
type Pair struct {
	Key   string
	Value Value
}

// F is a shorthand for Pair.
// Example: NewObject(F("name", String("cart")), F("count", Int(5)))
func F(key string, value Value) Pair {
	return Pair{Key: key, Value: value}
}

// NewObject creates an Object from pairs. Later pairs win on duplicate keys.
// A nil value is stored as Null.
func NewObject(pairs ...Pair) *Object {
	fields := make(map[string]Value, len(pairs))
	for _, p := range pairs {
		fields[p.Key] = orNull(p.Value)
	}
	return &Object{fields: fields}
}

// ObjectOf creates an Object from a map. The map is copied.
func ObjectOf(m map[string]Value) *Object {
	fields := make(map[string]Value, len(m))
	for k, v := range m {
		fields[k] = orNull(v)
	}
	return &Object{fields: fields}
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return Null{}, false
	}
	v, ok := o.fields[key]
	if !ok {
		return Null{}, false
	}
	return v, true
}

// Field returns the value stored under key, or Null when absent.
func (o *Object) Field(key string) Value {
	v, _ := o.Get(key)
	return v
}

// Has reports whether key is present.
func (o *Object) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// Len returns the number of fields.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.fields)
}

// Keys returns the field names in canonical order (see SortedKeys).
func (o *Object) Keys() []string {
	return SortedKeys(o)
}

// With returns a shallow copy of o with key set to v.
// o itself is never modified.
func (o *Object) With(key string, v Value) *Object {
	next := make(map[string]Value, o.Len()+1)
	if o != nil {
		maps.Copy(next, o.fields)
	}
	next[key] = orNull(v)
	return &Object{fields: next}
}

// WithAll returns a shallow copy of o with every entry of changes applied.
// Returns o unchanged when changes is empty.
func (o *Object) WithAll(changes map[string]Value) *Object {
	if len(changes) == 0 && o != nil {
		return o
	}
	next := make(map[string]Value, o.Len()+len(changes))
	if o != nil {
		maps.Copy(next, o.fields)
	}
	for k, v := range changes {
		next[k] = orNull(v)
	}
	return &Object{fields: next}
}

// Without returns a shallow copy of o without key.
// Returns o unchanged when key is absent.
func (o *Object) Without(key string) *Object {
	if !o.Has(key) {
		return o
	}
	next := maps.Clone(o.fields)
	delete(next, key)
	return &Object{fields: next}
}

// Merge returns a shallow copy of o with every field of other copied over it.
func (o *Object) Merge(other *Object) *Object {
	if other.Len() == 0 && o != nil {
		return o
	}
	return o.WithAll(other.fields)
}

// Range calls fn for each field in canonical key order until fn returns false.
func (o *Object) Range(fn func(key string, v Value) bool) {
	for _, k := range o.Keys() {
		if !fn(k, o.fields[k]) {
			return
		}
	}
}

// NewArray creates an Array from values. A nil value is stored as Null.
func NewArray(vals ...Value) *Array {
	items := make([]Value, len(vals))
	for i, v := range vals {
		items[i] = orNull(v)
	}
	return &Array{items: items}
}

// Len returns the number of items.
func (a *Array) Len() int {
	if a == nil {
		return 0
	}
	return len(a.items)
}

// At returns the item at index i, or Null when out of range.
func (a *Array) At(i int) Value {
	if i < 0 || i >= a.Len() {
		return Null{}
	}
	return a.items[i]
}

// Items returns a copy of the items.
func (a *Array) Items() []Value {
	if a == nil {
		return nil
	}
	return slices.Clone(a.items)
}

// With returns a copy of a with index i replaced by v.
// i == Len() appends. Panics with *PathError when i is out of [0, Len()].
func (a *Array) With(i int, v Value) *Array {
	if i < 0 || i > a.Len() {
		panic(&PathError{Path: Path{Index(i)}, Message: fmt.Sprintf("index out of range [0, %d]", a.Len())})
	}
	if i == a.Len() {
		return a.Append(v)
	}
	next := slices.Clone(a.items)
	next[i] = orNull(v)
	return &Array{items: next}
}

// Append returns a copy of a with vals appended.
func (a *Array) Append(vals ...Value) *Array {
	next := make([]Value, 0, a.Len()+len(vals))
	if a != nil {
		next = append(next, a.items...)
	}
	for _, v := range vals {
		next = append(next, orNull(v))
	}
	return &Array{items: next}
}

// Same reports whether a and b are the same node: identical pointers for
// containers, equal values for scalars. A nil Value is treated as Null.
func Same(a, b Value) bool {
	return orNull(a) == orNull(b)
}

// Equal reports deep structural equality.
// Float NaN is equal to NaN so that trees containing it compare equal to themselves.
func Equal(a, b Value) bool {
	a, b = orNull(a), orNull(b)
	if a == b {
		return true
	}
	switch av := a.(type) {
	case Float:
		bv, ok := b.(Float)
		return ok && math.IsNaN(float64(av)) && math.IsNaN(float64(bv))
	case *Array:
		bv, ok := b.(*Array)
		if !ok || av.Len() != bv.Len() {
			return false
		}
		for i := range av.Len() {
			if !Equal(av.items[i], bv.items[i]) {
				return false
			}
		}
		return true
	case *Object:
		bv, ok := b.(*Object)
		if !ok || av.Len() != bv.Len() {
			return false
		}
		for k, v := range av.fields {
			w, ok := bv.fields[k]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Kind returns a short type name for diagnostics.
func Kind(v Value) string {
	switch v.(type) {
	case nil, Null:
		return "null"
	case String:
		return "string"
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case *Array:
		return "array"
	case *Object:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func orNull(v Value) Value {
	if v == nil {
		return Null{}
	}
	return v
}
