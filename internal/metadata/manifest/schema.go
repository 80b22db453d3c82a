// Package manifest reads module manifests: YAML (or JSON) documents that
// describe the types, members and instruction streams of one compiled
// module.
//
// Example:
//
//	name: App
//	references: [Lib1, Lib2]
//	types:
//	  - name: Widget
//	    namespace: A.B.C
//	    kind: class
//	    methods:
//	      - name: Build
//	        returns: A.B.C.Gadget
//	        parameters: ["A.B.C.Part[]", "List<A.B.C.Part>"]
//	        body:
//	          - op: call
//	            target: A.B.C.Gadget::Run
package manifest

// File is the document stored in a manifest file
type File struct {
	Name       string         `yaml:"name" validate:"required"`
	References []string       `yaml:"references" validate:"dive,required"`
	Types      []TypeSpec     `yaml:"types" validate:"dive"`
	External   []ExternalSpec `yaml:"external" validate:"dive"`
}

// TypeSpec describes a declared type
type TypeSpec struct {
	Name       string `yaml:"name" validate:"required"`
	Namespace  string `yaml:"namespace"`
	Kind       string `yaml:"kind"`
	Visibility string `yaml:"visibility" validate:"omitempty,oneof=public internal private protected"`

	// Declaring is the full name of the enclosing type for nested types
	Declaring string `yaml:"declaring"`
	Primitive bool   `yaml:"primitive"`

	Methods    []MethodSpec `yaml:"methods" validate:"dive"`
	Properties []MemberSpec `yaml:"properties" validate:"dive"`
	Fields     []MemberSpec `yaml:"fields" validate:"dive"`
}

// MethodSpec describes a method
type MethodSpec struct {
	Name string `yaml:"name" validate:"required"`

	// Signature overrides the derived fully-qualified signature
	Signature  string            `yaml:"signature"`
	Returns    string            `yaml:"returns"`
	Parameters []string          `yaml:"parameters" validate:"dive,required"`
	Abstract   bool              `yaml:"abstract"`
	Body       []InstructionSpec `yaml:"body" validate:"dive"`
}

// MemberSpec describes a property or field
type MemberSpec struct {
	Name string `yaml:"name" validate:"required"`
	Type string `yaml:"type" validate:"required"`
}

// InstructionSpec is one instruction of a method body. Op is "call",
// "callvirt" or any other opcode name; Target names the callee either by
// full signature or as "Type::Method".
type InstructionSpec struct {
	Op     string `yaml:"op" validate:"required"`
	Target string `yaml:"target" validate:"required_if=Op call,required_if=Op callvirt"`
}

// ExternalSpec declares a type defined by another module so references to
// it resolve outside the current module
type ExternalSpec struct {
	Module string `yaml:"module" validate:"required"`
	Name   string `yaml:"name" validate:"required"`
	Kind   string `yaml:"kind"`
}
