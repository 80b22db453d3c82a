// Package metadata defines the view of a compiled module that the graph
// builder consumes. Readers for concrete formats live in subpackages.
package metadata

// TypeKind is the shape of a type definition
type TypeKind int

const (
	// KindUnknown marks a definition the reader could not classify.
	// The builder treats it as fatal.
	KindUnknown TypeKind = iota
	KindClass
	KindStruct
	KindInterface
	KindEnum
)

// String returns the kind name
func (k TypeKind) String() string {
	switch k {
	case KindClass:
		return "class"
	case KindStruct:
		return "struct"
	case KindInterface:
		return "interface"
	case KindEnum:
		return "enum"
	default:
		return "unknown"
	}
}

// ParseKind maps a kind name to a TypeKind, KindUnknown when unrecognized
func ParseKind(s string) TypeKind {
	switch s {
	case "class":
		return KindClass
	case "struct", "valuetype":
		return KindStruct
	case "interface":
		return KindInterface
	case "enum":
		return KindEnum
	default:
		return KindUnknown
	}
}

// Reader opens modules of one format
type Reader interface {
	// Open reads the module stored at path
	Open(path string) (Module, error)

	// Locate finds a module called name next to the module at sourcePath.
	// It returns false when no such module exists.
	Locate(sourcePath, name string) (string, bool)
}

// Module is a compiled unit containing types
type Module interface {
	Name() string
	Path() string

	// NamespaceSeparator splits namespace paths into segments
	NamespaceSeparator() string

	// References lists the names of directly referenced modules
	References() ([]string, error)

	// Types enumerates every type declared in the module, nested ones included
	Types() ([]TypeDef, error)
}

// TypeRef is a use of a type in a signature
type TypeRef interface {
	// IsArray reports whether the reference wraps an element type
	IsArray() bool
	ElementType() TypeRef

	// GenericArguments is non-empty for generic instantiations
	GenericArguments() []TypeRef

	// Resolve returns the definition, or nil when it cannot be resolved
	Resolve() TypeDef
}

// Composite is implemented by references that only group component types,
// such as maps, result tuples and function types. A composite reference
// denotes no type of its own; only its generic arguments are references.
type Composite interface {
	IsComposite() bool
}

// IsComposite reports whether ref only groups component types
func IsComposite(ref TypeRef) bool {
	c, ok := ref.(Composite)
	return ok && c.IsComposite()
}

// TypeDef is a declared type
type TypeDef interface {
	Name() string
	FullName() string
	Namespace() string
	Kind() TypeKind
	IsPublic() bool
	IsNestedPublic() bool

	// DeclaringType is nil for top-level types
	DeclaringType() TypeDef
	IsPrimitive() bool
	Module() Module

	Methods() []MethodDef
	Properties() []PropertyDef
	Fields() []FieldDef
}

// MethodDef is a declared method
type MethodDef interface {
	Name() string

	// FullName is the fully-qualified signature
	FullName() string
	DeclaringType() TypeDef

	// ReturnType is nil for methods returning nothing
	ReturnType() TypeRef
	Parameters() []TypeRef

	HasBody() bool
	Body() ([]Instruction, error)
}

// PropertyDef is a declared property
type PropertyDef interface {
	Name() string
	PropertyType() TypeRef
}

// FieldDef is a declared field
type FieldDef interface {
	Name() string
	FieldType() TypeRef
}

// MethodRef is a method operand of an instruction
type MethodRef interface {
	// Resolve returns the callee definition, or nil when it cannot be resolved
	Resolve() MethodDef
}

// OpKind classifies instructions
type OpKind int

const (
	OpOther OpKind = iota
	OpCall
	OpCallVirtual
)

// Instruction is one entry of a method body
type Instruction struct {
	Op      OpKind
	Operand MethodRef
}

// IsCall reports whether the instruction is a direct or virtual call
func (i Instruction) IsCall() bool {
	return i.Op == OpCall || i.Op == OpCallVirtual
}

// SameModule reports whether two modules are the same unit
func SameModule(a, b Module) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Name() == b.Name()
}

// SameType reports whether two definitions denote the same type
func SameType(a, b TypeDef) bool {
	if a == nil || b == nil {
		return false
	}
	return a.FullName() == b.FullName() && SameModule(a.Module(), b.Module())
}
