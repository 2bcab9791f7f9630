package state

// Cursor is a read-only position in a state tree.
//
// Selectors navigate with Get and At. A recording cursor additionally tracks
// the keys it was reached through, which is how ResolvePath learns the path a
// selector reads without any dynamic interception.
type Cursor struct {
	value  Value
	path   Path
	record bool
}

// Selector extracts a sub-tree by navigating a cursor.
//
// Selectors must be a fixed chain of reads (c.Get("a").Get("b")) that does not
// branch on data; only the path of the returned cursor is recorded.
type Selector func(c Cursor) Cursor

// NewCursor returns a non-recording cursor at root.
func NewCursor(root Value) Cursor {
	return Cursor{value: orNull(root)}
}

// Get moves to an object field. Missing fields and reads through non-objects
// yield a cursor at Null.
func (c Cursor) Get(name string) Cursor {
	return c.step(Field(name))
}

// At moves to an array item. Out-of-range indexes and reads through
// non-arrays yield a cursor at Null.
func (c Cursor) At(i int) Cursor {
	return c.step(Index(i))
}

// Value returns the value under the cursor.
func (c Cursor) Value() Value {
	return orNull(c.value)
}

// Path returns the recorded path. Always empty for non-recording cursors.
func (c Cursor) Path() Path {
	return c.path
}

// Object returns the value as an object, if it is one.
func (c Cursor) Object() (*Object, bool) {
	obj, ok := c.value.(*Object)
	return obj, ok
}

// Array returns the value as an array, if it is one.
func (c Cursor) Array() (*Array, bool) {
	arr, ok := c.value.(*Array)
	return arr, ok
}

func (c Cursor) step(k Key) Cursor {
	next := Cursor{value: child(orNull(c.value), k), record: c.record}
	if c.record {
		next.path = c.path.Append(k)
	}
	return next
}

// Select runs sel against root and returns the selected value.
// A nil selector selects root.
func Select(root Value, sel Selector) Value {
	if sel == nil {
		return orNull(root)
	}
	return sel(NewCursor(root)).Value()
}

// ResolvePath runs sel once against a recording cursor over root and returns
// the path of the cursor it returns. A nil selector resolves to the root path.
func ResolvePath(root Value, sel Selector) Path {
	if sel == nil {
		return Path{}
	}
	c := sel(Cursor{value: orNull(root), path: Path{}, record: true})
	if c.path == nil {
		return Path{}
	}
	return c.path
}

// PathSelector returns a selector that reads path.
func PathSelector(path Path) Selector {
	keys := append(Path(nil), path...)
	return func(c Cursor) Cursor {
		for _, k := range keys {
			c = c.step(k)
		}
		return c
	}
}

// Fields returns a selector that reads a chain of object fields.
// Fields("deep", "nested") is c.Get("deep").Get("nested").
func Fields(names ...string) Selector {
	path := make(Path, len(names))
	for i, n := range names {
		path[i] = Field(n)
	}
	return PathSelector(path)
}
