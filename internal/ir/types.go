package ir

// Design is a compiled hardware design as seen by the scheduler: the methods
// it exposes, the transactions competing for them, and the relations
// declared between them. Slices are in declaration order.
type Design struct {
	Name         string            `json:"name"`
	Methods      []MethodDecl      `json:"methods"`
	Transactions []TransactionDecl `json:"transactions"`
	Relations    []RelationDecl    `json:"relations"`
}

// MethodDecl declares a method: an exclusively callable unit of logic.
type MethodDecl struct {
	Name   string   `json:"name"`
	Input  []Field  `json:"input,omitempty"`
	Output []Field  `json:"output,omitempty"`
	Calls  []string `json:"calls,omitempty"` // nested method calls
}

// TransactionDecl declares a transaction and the methods its body calls.
type TransactionDecl struct {
	Name  string   `json:"name"`
	Calls []string `json:"calls"`
}

// Field is one named, typed member of a method input or output layout.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"` // string | int | bool | array | object
}

// RelationKind distinguishes the two relation kinds.
type RelationKind string

const (
	// RelationExclusive means A and B never fire in the same cycle.
	RelationExclusive RelationKind = "exclusive"

	// RelationPriority means A is preferred over B when both are ready,
	// and B must not fire when A does.
	RelationPriority RelationKind = "priority"
)

// ValidRelationKinds defines allowed relation kinds.
var ValidRelationKinds = map[RelationKind]bool{
	RelationExclusive: true,
	RelationPriority:  true,
}

// RelationDecl is an explicit relation between two transactions or methods.
// For priority relations A is the higher-priority side.
type RelationDecl struct {
	Kind RelationKind `json:"kind"`
	A    string       `json:"a"`
	B    string       `json:"b"`
}

// FieldTypes lists the layout field types a method may declare.
var FieldTypes = map[string]bool{
	"string": true,
	"int":    true,
	"bool":   true,
	"array":  true,
	"object": true,
}

// Method returns the method declaration with the given name.
func (d *Design) Method(name string) (MethodDecl, bool) {
	for _, m := range d.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return MethodDecl{}, false
}

// Transaction returns the transaction declaration with the given name.
func (d *Design) Transaction(name string) (TransactionDecl, bool) {
	for _, t := range d.Transactions {
		if t.Name == name {
			return t, true
		}
	}
	return TransactionDecl{}, false
}
