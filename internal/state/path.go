package state

import (
	"fmt"
	"strconv"
	"strings"
)

// Key is one step of a Path: an object field name or an array index.
type Key struct {
	name    string
	index   int
	isIndex bool
}

// Field returns a Key addressing an object field.
func Field(name string) Key {
	return Key{name: name}
}

// Index returns a Key addressing an array item.
func Index(i int) Key {
	return Key{index: i, isIndex: true}
}

// Name returns the field name. Empty for index keys.
func (k Key) Name() string { return k.name }

// Index returns the array index and true for index keys.
func (k Key) Index() (int, bool) { return k.index, k.isIndex }

// String renders the key as it appears in a path string.
func (k Key) String() string {
	if k.isIndex {
		return "[" + strconv.Itoa(k.index) + "]"
	}
	return k.name
}

// Path is an ordered list of keys from a root value to a sub-tree.
// The empty path addresses the root itself.
type Path []Key

// ParsePath parses the dotted form produced by Path.String,
// e.g. "deep.nested.prop" or "items[2].name". The empty string is the root.
func ParsePath(s string) (Path, error) {
	if s == "" {
		return Path{}, nil
	}

	var path Path
	for _, segment := range strings.Split(s, ".") {
		name, rest, hasIndex := strings.Cut(segment, "[")
		if name == "" && !hasIndex {
			return nil, &PathError{Message: fmt.Sprintf("empty segment in %q", s)}
		}
		if name != "" {
			path = append(path, Field(name))
		}

		// Remaining "[i]" groups
		for hasIndex {
			idx, tail, ok := strings.Cut(rest, "]")
			if !ok {
				return nil, &PathError{Message: fmt.Sprintf("unterminated index in %q", s)}
			}
			i, err := strconv.Atoi(idx)
			if err != nil || i < 0 {
				return nil, &PathError{Message: fmt.Sprintf("invalid index %q in %q", idx, s)}
			}
			path = append(path, Index(i))
			if tail == "" {
				break
			}
			if !strings.HasPrefix(tail, "[") {
				return nil, &PathError{Message: fmt.Sprintf("unexpected %q after index in %q", tail, s)}
			}
			rest = tail[1:]
		}
	}
	return path, nil
}

// MustParsePath is ParsePath for literals. Panics on error.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String renders the path in dotted form.
func (p Path) String() string {
	var b strings.Builder
	for i, k := range p {
		if i > 0 && !k.isIndex {
			b.WriteByte('.')
		}
		b.WriteString(k.String())
	}
	return b.String()
}

// Equal reports whether two paths address the same keys.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// Append returns a new path with k appended. p is never modified.
func (p Path) Append(k Key) Path {
	next := make(Path, len(p), len(p)+1)
	copy(next, p)
	return append(next, k)
}

// Lookup walks the path from root. Missing keys, out-of-range indexes and
// reads through scalars yield Null.
func (p Path) Lookup(root Value) Value {
	v := orNull(root)
	for _, k := range p {
		v = child(v, k)
	}
	return v
}

// SetIn returns a copy of root with the value at path replaced by v.
//
// Only the nodes on the path are reallocated: at depth 0 it returns v,
// otherwise it shallow-copies the current node, overwrites the head key with
// the recursive result for the tail, and returns the copy. Every node off the
// path keeps its identity.
//
// Missing or scalar nodes along the path become empty objects (or empty
// arrays for index keys). An index beyond Len() panics with *PathError.
func SetIn(root Value, path Path, v Value) Value {
	if len(path) == 0 {
		return orNull(v)
	}
	head, tail := path[0], path[1:]
	if head.isIndex {
		arr, _ := root.(*Array)
		if head.index < 0 || head.index > arr.Len() {
			panic(&PathError{Path: path, Message: fmt.Sprintf("index out of range [0, %d]", arr.Len())})
		}
		return arr.With(head.index, SetIn(arr.At(head.index), tail, v))
	}
	obj, _ := root.(*Object)
	return obj.With(head.name, SetIn(obj.Field(head.name), tail, v))
}

// DeleteIn returns a copy of root without the value at path.
// Returns root unchanged when the path does not exist. Index keys are not
// removable; deleting one returns root unchanged.
func DeleteIn(root Value, path Path) Value {
	if len(path) == 0 {
		return Null{}
	}
	parent := path[:len(path)-1].Lookup(root)
	last := path[len(path)-1]
	obj, ok := parent.(*Object)
	if !ok || last.isIndex || !obj.Has(last.name) {
		return root
	}
	return SetIn(root, path[:len(path)-1], obj.Without(last.name))
}

func child(v Value, k Key) Value {
	if k.isIndex {
		if arr, ok := v.(*Array); ok {
			return arr.At(k.index)
		}
		return Null{}
	}
	if obj, ok := v.(*Object); ok {
		return obj.Field(k.name)
	}
	return Null{}
}

// PathError reports an invalid path or an update the path cannot express.
type PathError struct {
	Path    Path
	Message string
}

func (e *PathError) Error() string {
	if len(e.Path) > 0 {
		return fmt.Sprintf("path %s: %s", e.Path, e.Message)
	}
	return "path: " + e.Message
}
