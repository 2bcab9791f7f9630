package ir

import "github.com/roach88/treestore/internal/state"

// StoreSpec is a compiled store definition.
type StoreSpec struct {
	Name    string      `json:"name"`
	Initial state.Value `json:"initial"`
	Cases   []CaseSpec  `json:"cases"`
	Async   []AsyncSpec `json:"async"` // sorted by Type
}

// CaseSpec updates the sub-tree at At when an action named On is dispatched.
type CaseSpec struct {
	On string `json:"on"`           // action name, e.g. "load.done"
	At string `json:"at,omitempty"` // dotted path, empty for the root
	Op Op     `json:"op"`

	// Exactly one operand source is set, except for toggle and unset
	// which take none.
	Value state.Value `json:"value,omitempty"`
	From  string      `json:"from,omitempty"` // "data", "data.user", "params[0].name"
}

// HasOperand reports whether the case carries a literal value or a source.
func (c CaseSpec) HasOperand() bool {
	return c.Value != nil || c.From != ""
}

// Op names a built-in update applied to the sub-tree a case targets.
type Op string

const (
	OpSet    Op = "set"    // replace with operand
	OpAdd    Op = "add"    // numeric addition, Null counts as 0
	OpAppend Op = "append" // append operand to an array, Null counts as []
	OpMerge  Op = "merge"  // shallow-merge an object operand
	OpToggle Op = "toggle" // negate a bool, Null counts as false
	OpUnset  Op = "unset"  // remove the field from its parent object
)

// ValidOps lists the supported case operations.
var ValidOps = map[Op]bool{
	OpSet:    true,
	OpAdd:    true,
	OpAppend: true,
	OpMerge:  true,
	OpToggle: true,
	OpUnset:  true,
}

// NeedsOperand reports whether op reads a value or a source.
func (op Op) NeedsOperand() bool {
	return op != OpToggle && op != OpUnset
}

// AsyncSpec registers an async action whose result comes from a built-in
// loader.
type AsyncSpec struct {
	Type    string      `json:"type"`
	Loader  LoaderKind  `json:"loader"`
	Value   state.Value `json:"value,omitempty"`   // LoaderValue only
	Message string      `json:"message,omitempty"` // LoaderFail only
}

// LoaderKind names a built-in loader.
type LoaderKind string

const (
	LoaderEcho  LoaderKind = "echo"  // resolves to params[0], or Null without params
	LoaderValue LoaderKind = "value" // resolves to a fixed value
	LoaderFail  LoaderKind = "fail"  // always fails with Message
)

// ValidLoaders lists the supported loader kinds.
var ValidLoaders = map[LoaderKind]bool{
	LoaderEcho:  true,
	LoaderValue: true,
	LoaderFail:  true,
}
