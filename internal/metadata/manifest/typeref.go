package manifest

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/codegraph/internal/metadata"
)

// typeRef is a parsed type expression: "T", "T[]" or "G<A, B>"
type typeRef struct {
	name   string
	elem   *typeRef
	args   []*typeRef
	module *Module
}

func (r *typeRef) IsArray() bool {
	return r.elem != nil
}

func (r *typeRef) ElementType() metadata.TypeRef {
	if r.elem == nil {
		return nil
	}
	return r.elem
}

func (r *typeRef) GenericArguments() []metadata.TypeRef {
	result := make([]metadata.TypeRef, len(r.args))
	for i, arg := range r.args {
		result[i] = arg
	}
	return result
}

func (r *typeRef) Resolve() metadata.TypeDef {
	if r.elem != nil {
		return r.elem.Resolve()
	}
	if def := r.module.lookupType(r.name); def != nil {
		return def
	}
	return nil
}

func (r *typeRef) String() string {
	switch {
	case r.elem != nil:
		return r.elem.String() + "[]"
	case len(r.args) > 0:
		parts := make([]string, len(r.args))
		for i, arg := range r.args {
			parts[i] = arg.String()
		}
		return r.name + "<" + strings.Join(parts, ",") + ">"
	default:
		return r.name
	}
}

// parseTypeRef parses a type expression
func parseTypeRef(expr string, module *Module) (*typeRef, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty type expression")
	}

	if strings.HasSuffix(expr, "[]") {
		elem, err := parseTypeRef(strings.TrimSuffix(expr, "[]"), module)
		if err != nil {
			return nil, err
		}
		return &typeRef{elem: elem, module: module}, nil
	}

	open := strings.IndexByte(expr, '<')
	if open < 0 {
		if strings.ContainsAny(expr, ">,") {
			return nil, fmt.Errorf("malformed type expression %q", expr)
		}
		return &typeRef{name: expr, module: module}, nil
	}
	if !strings.HasSuffix(expr, ">") {
		return nil, fmt.Errorf("malformed type expression %q", expr)
	}

	ref := &typeRef{name: strings.TrimSpace(expr[:open]), module: module}
	for _, part := range splitArguments(expr[open+1 : len(expr)-1]) {
		arg, err := parseTypeRef(part, module)
		if err != nil {
			return nil, fmt.Errorf("in %q: %w", expr, err)
		}
		ref.args = append(ref.args, arg)
	}
	return ref, nil
}

// splitArguments splits on commas outside angle brackets
func splitArguments(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, c := range s {
		switch c {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
