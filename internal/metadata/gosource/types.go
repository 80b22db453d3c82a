package gosource

import (
	"fmt"
	"go/types"

	"golang.org/x/tools/go/ssa"

	"github.com/conduit-lang/codegraph/internal/metadata"
)

type typeDef struct {
	module  *Module
	obj     *types.TypeName
	named   *types.Named
	kind    metadata.TypeKind
	methods []*methodDef
	fields  []*field
}

func (t *typeDef) Name() string { return t.obj.Name() }
func (t *typeDef) FullName() string { return qualifiedName(t.obj) }
func (t *typeDef) Namespace() string { return t.obj.Pkg().Path() }
func (t *typeDef) Kind() metadata.TypeKind { return t.kind }
func (t *typeDef) IsPublic() bool { return t.obj.Exported() }
func (t *typeDef) IsNestedPublic() bool { return false }
func (t *typeDef) DeclaringType() metadata.TypeDef { return nil }
func (t *typeDef) IsPrimitive() bool { return false }
func (t *typeDef) Module() metadata.Module { return t.module }
func (t *typeDef) Properties() []metadata.PropertyDef { return nil }

func (t *typeDef) Methods() []metadata.MethodDef {
	result := make([]metadata.MethodDef, len(t.methods))
	for i, method := range t.methods {
		result[i] = method
	}
	return result
}

func (t *typeDef) Fields() []metadata.FieldDef {
	result := make([]metadata.FieldDef, len(t.fields))
	for i, f := range t.fields {
		result[i] = f
	}
	return result
}

// buildMembers collects explicit interface methods, or declared methods
// and struct fields for concrete types
func (t *typeDef) buildMembers() {
	switch u := t.named.Underlying().(type) {
	case *types.Interface:
		for i := 0; i < u.NumExplicitMethods(); i++ {
			t.methods = append(t.methods, &methodDef{declaring: t, fn: u.ExplicitMethod(i)})
		}
		return
	case *types.Struct:
		for i := 0; i < u.NumFields(); i++ {
			v := u.Field(i)
			t.fields = append(t.fields, &field{name: v.Name(), ref: t.module.typeRef(v.Type())})
		}
	}

	for i := 0; i < t.named.NumMethods(); i++ {
		fn := t.named.Method(i)
		t.methods = append(t.methods, &methodDef{
			declaring: t,
			fn:        fn,
			ssa:       t.module.prog.FuncValue(fn),
		})
	}
}

// method finds a method of t by name
func (t *typeDef) method(name string) *methodDef {
	for _, method := range t.methods {
		if method.fn.Name() == name {
			return method
		}
	}
	return nil
}

type field struct {
	name string
	ref  *typeRef
}

func (f *field) Name() string { return f.name }
func (f *field) FieldType() metadata.TypeRef { return f.ref }

type methodDef struct {
	declaring *typeDef
	fn        *types.Func
	ssa       *ssa.Function
}

func (md *methodDef) Name() string { return md.fn.Name() }
func (md *methodDef) FullName() string { return md.fn.FullName() }
func (md *methodDef) DeclaringType() metadata.TypeDef { return md.declaring }

// HasBody is false for interface methods
func (md *methodDef) HasBody() bool {
	return md.ssa != nil && len(md.ssa.Blocks) > 0
}

func (md *methodDef) ReturnType() metadata.TypeRef {
	results := md.fn.Type().(*types.Signature).Results()
	switch results.Len() {
	case 0:
		return nil
	case 1:
		return md.declaring.module.typeRef(results.At(0).Type())
	default:
		return md.declaring.module.typeRef(results)
	}
}

func (md *methodDef) Parameters() []metadata.TypeRef {
	params := md.fn.Type().(*types.Signature).Params()
	result := make([]metadata.TypeRef, params.Len())
	for i := 0; i < params.Len(); i++ {
		result[i] = md.declaring.module.typeRef(params.At(i).Type())
	}
	return result
}

// Body lists the instructions of the method and of the closures it
// declares, block by block
func (md *methodDef) Body() ([]metadata.Instruction, error) {
	if !md.HasBody() {
		return nil, fmt.Errorf("method %s has no body", md.FullName())
	}
	var body []metadata.Instruction
	md.appendBody(&body, md.ssa)
	return body, nil
}

func (md *methodDef) appendBody(body *[]metadata.Instruction, fn *ssa.Function) {
	for _, block := range fn.Blocks {
		for _, instr := range block.Instrs {
			*body = append(*body, md.instruction(instr))
		}
	}
	for _, anon := range fn.AnonFuncs {
		md.appendBody(body, anon)
	}
}

// instruction maps interface invocations to virtual calls and static
// calls to direct calls; dynamic calls through function values carry no
// operand
func (md *methodDef) instruction(instr ssa.Instruction) metadata.Instruction {
	call, ok := instr.(ssa.CallInstruction)
	if !ok {
		return metadata.Instruction{Op: metadata.OpOther}
	}

	common := call.Common()
	module := md.declaring.module
	if common.IsInvoke() {
		return metadata.Instruction{
			Op:      metadata.OpCallVirtual,
			Operand: &methodRef{module: module, fn: common.Method},
		}
	}

	ins := metadata.Instruction{Op: metadata.OpCall}
	callee := common.StaticCallee()
	if callee == nil {
		return ins
	}
	if origin := callee.Origin(); origin != nil {
		callee = origin
	}
	if fn, ok := callee.Object().(*types.Func); ok {
		ins.Operand = &methodRef{module: module, fn: fn}
	}
	return ins
}

type methodRef struct {
	module *Module
	fn     *types.Func
}

// Resolve finds the method among the module's types. Package level
// functions and methods of external types resolve to nil.
func (r *methodRef) Resolve() metadata.MethodDef {
	fn := r.fn.Origin()
	recv := fn.Type().(*types.Signature).Recv()
	if recv == nil {
		return nil
	}
	named := receiverNamed(recv.Type())
	if named == nil {
		return nil
	}
	def, ok := r.module.byName[qualifiedName(named.Origin().Obj())]
	if !ok {
		return nil
	}
	if method := def.method(fn.Name()); method != nil {
		return method
	}
	return nil
}

func receiverNamed(t types.Type) *types.Named {
	t = types.Unalias(t)
	if ptr, ok := t.(*types.Pointer); ok {
		t = types.Unalias(ptr.Elem())
	}
	named, _ := t.(*types.Named)
	return named
}

// typeRef is a Go type as seen from a signature. Pointers, slices, arrays
// and channels wrap an element; maps, tuples, function types and
// instantiated generics carry their component types as arguments.
type typeRef struct {
	module    *Module
	named     *types.Named
	elem      *typeRef
	args      []*typeRef
	composite bool
}

func (r *typeRef) IsArray() bool { return r.elem != nil }
func (r *typeRef) IsComposite() bool { return r.composite }

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
	if r.named == nil {
		return nil
	}
	return r.module.resolveNamed(r.named)
}

func (m *Module) typeRef(t types.Type) *typeRef {
	ref := &typeRef{module: m}
	switch t := types.Unalias(t).(type) {
	case *types.Pointer:
		ref.elem = m.typeRef(t.Elem())
	case *types.Slice:
		ref.elem = m.typeRef(t.Elem())
	case *types.Array:
		ref.elem = m.typeRef(t.Elem())
	case *types.Chan:
		ref.elem = m.typeRef(t.Elem())
	case *types.Map:
		ref.composite = true
		ref.args = []*typeRef{m.typeRef(t.Key()), m.typeRef(t.Elem())}
	case *types.Tuple:
		ref.composite = true
		for i := 0; i < t.Len(); i++ {
			ref.args = append(ref.args, m.typeRef(t.At(i).Type()))
		}
	case *types.Signature:
		ref.composite = true
		ref.args = append(m.typeRef(t.Params()).args, m.typeRef(t.Results()).args...)
	case *types.Named:
		ref.named = t
		targs := t.TypeArgs()
		for i := 0; i < targs.Len(); i++ {
			ref.args = append(ref.args, m.typeRef(targs.At(i)))
		}
	}
	return ref
}

// externalType stands in for a named type declared outside the module
type externalType struct {
	obj *types.TypeName
}

func (e *externalType) Name() string { return e.obj.Name() }
func (e *externalType) FullName() string { return qualifiedName(e.obj) }
func (e *externalType) Namespace() string { return e.obj.Pkg().Path() }
func (e *externalType) Kind() metadata.TypeKind { return metadata.KindUnknown }
func (e *externalType) IsPublic() bool { return e.obj.Exported() }
func (e *externalType) IsNestedPublic() bool { return false }
func (e *externalType) DeclaringType() metadata.TypeDef { return nil }
func (e *externalType) IsPrimitive() bool { return false }
func (e *externalType) Module() metadata.Module { return externalModule(e.obj.Pkg().Path()) }
func (e *externalType) Methods() []metadata.MethodDef { return nil }
func (e *externalType) Properties() []metadata.PropertyDef { return nil }
func (e *externalType) Fields() []metadata.FieldDef { return nil }

// externalModule is named after the package path of an external type
type externalModule string

func (e externalModule) Name() string { return string(e) }
func (e externalModule) Path() string { return "" }
func (e externalModule) NamespaceSeparator() string { return "/" }
func (e externalModule) References() ([]string, error) { return nil, nil }
func (e externalModule) Types() ([]metadata.TypeDef, error) { return nil, nil }
