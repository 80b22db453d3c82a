package manifest

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/codegraph/internal/metadata"
)

// Module is a module read from a manifest
type Module struct {
	name       string
	path       string
	references []string
	types      []*typeDef
	byName     map[string]*typeDef
	external   map[string]*typeDef
	methods    map[string]*methodDef
}

func newModule(file *File, path string) (*Module, error) {
	m := &Module{
		name:       file.Name,
		path:       path,
		references: file.References,
		byName:     make(map[string]*typeDef),
		external:   make(map[string]*typeDef),
		methods:    make(map[string]*methodDef),
	}

	for _, ext := range file.External {
		m.external[ext.Name] = &typeDef{
			name:   lastSegment(ext.Name),
			full:   ext.Name,
			kind:   metadata.ParseKind(ext.Kind),
			public: true,
			module: &externalModule{name: ext.Module},
		}
	}

	// declaring types may be listed after the types they contain, so
	// names are assigned in a second pass
	specs := make([]*typeDef, len(file.Types))
	for i := range file.Types {
		spec := &file.Types[i]
		specs[i] = &typeDef{
			spec:   spec,
			name:   spec.Name,
			kind:   metadata.ParseKind(spec.Kind),
			module: m,
		}
	}
	for _, def := range specs {
		if err := m.assignFullName(def, specs, 0); err != nil {
			return nil, err
		}
		if _, dup := m.byName[def.full]; dup {
			return nil, fmt.Errorf("module %s: duplicate type %s", m.name, def.full)
		}
		m.byName[def.full] = def
		m.types = append(m.types, def)
	}

	for _, def := range m.types {
		if err := m.buildMembers(def); err != nil {
			return nil, err
		}
	}
	for _, def := range m.types {
		for _, method := range def.methods {
			method.buildBody()
		}
	}
	return m, nil
}

func (m *Module) assignFullName(def *typeDef, specs []*typeDef, depth int) error {
	if def.full != "" {
		return nil
	}
	if depth > len(specs) {
		return fmt.Errorf("module %s: declaring type cycle at %s", m.name, def.name)
	}

	spec := def.spec
	if spec.Declaring == "" {
		def.namespace = spec.Namespace
		def.full = spec.Name
		if spec.Namespace != "" {
			def.full = spec.Namespace + "." + spec.Name
		}
		def.public = spec.Visibility == "" || spec.Visibility == "public"
		return nil
	}

	for _, candidate := range specs {
		if candidate == def {
			continue
		}
		if err := m.assignFullName(candidate, specs, depth+1); err != nil {
			return err
		}
		if candidate.full == spec.Declaring {
			def.declaring = candidate
			def.namespace = candidate.namespace
			def.full = candidate.full + "/" + spec.Name
			def.nestedPublic = spec.Visibility == "" || spec.Visibility == "public"
			return nil
		}
	}
	return fmt.Errorf("module %s: declaring type %s of %s not found", m.name, spec.Declaring, spec.Name)
}

func (m *Module) buildMembers(def *typeDef) error {
	spec := def.spec
	for i := range spec.Methods {
		ms := &spec.Methods[i]
		method := &methodDef{spec: ms, declaring: def}

		if ms.Returns != "" {
			ref, err := parseTypeRef(ms.Returns, m)
			if err != nil {
				return fmt.Errorf("method %s.%s: %w", def.full, ms.Name, err)
			}
			method.returns = ref
		}
		for _, p := range ms.Parameters {
			ref, err := parseTypeRef(p, m)
			if err != nil {
				return fmt.Errorf("method %s.%s: %w", def.full, ms.Name, err)
			}
			method.params = append(method.params, ref)
		}

		method.full = ms.Signature
		if method.full == "" {
			method.full = method.signature()
		}
		m.methods[method.full] = method
		def.methods = append(def.methods, method)
	}

	for i := range spec.Properties {
		ps := &spec.Properties[i]
		ref, err := parseTypeRef(ps.Type, m)
		if err != nil {
			return fmt.Errorf("property %s.%s: %w", def.full, ps.Name, err)
		}
		def.properties = append(def.properties, &member{name: ps.Name, ref: ref})
	}
	for i := range spec.Fields {
		fs := &spec.Fields[i]
		ref, err := parseTypeRef(fs.Type, m)
		if err != nil {
			return fmt.Errorf("field %s.%s: %w", def.full, fs.Name, err)
		}
		def.fields = append(def.fields, &member{name: fs.Name, ref: ref})
	}
	return nil
}

func (m *Module) lookupType(full string) *typeDef {
	if def, ok := m.byName[full]; ok {
		return def
	}
	return m.external[full]
}

// lookupMethod resolves a call target given as a full signature or "Type::Name"
func (m *Module) lookupMethod(target string) *methodDef {
	if method, ok := m.methods[target]; ok {
		return method
	}
	if strings.Contains(target, "(") {
		return nil
	}

	idx := strings.LastIndex(target, "::")
	if idx < 0 {
		return nil
	}
	def, ok := m.byName[target[:idx]]
	if !ok {
		return nil
	}
	name := target[idx+2:]
	for _, method := range def.methods {
		if method.spec.Name == name {
			return method
		}
	}
	return nil
}

func (m *Module) Name() string { return m.name }
func (m *Module) Path() string { return m.path }
func (m *Module) NamespaceSeparator() string { return "." }

func (m *Module) References() ([]string, error) {
	return m.references, nil
}

func (m *Module) Types() ([]metadata.TypeDef, error) {
	result := make([]metadata.TypeDef, len(m.types))
	for i, def := range m.types {
		result[i] = def
	}
	return result, nil
}

// externalModule stands in for a module the manifest only names
type externalModule struct {
	name string
}

func (e *externalModule) Name() string { return e.name }
func (e *externalModule) Path() string { return "" }
func (e *externalModule) NamespaceSeparator() string { return "." }
func (e *externalModule) References() ([]string, error) { return nil, nil }
func (e *externalModule) Types() ([]metadata.TypeDef, error) { return nil, nil }

type typeDef struct {
	spec         *TypeSpec
	name         string
	full         string
	namespace    string
	kind         metadata.TypeKind
	public       bool
	nestedPublic bool
	declaring    *typeDef
	module       metadata.Module
	methods      []*methodDef
	properties   []*member
	fields       []*member
}

func (t *typeDef) Name() string { return t.name }
func (t *typeDef) FullName() string { return t.full }
func (t *typeDef) Namespace() string { return t.namespace }
func (t *typeDef) Kind() metadata.TypeKind { return t.kind }
func (t *typeDef) IsPublic() bool { return t.public }
func (t *typeDef) IsNestedPublic() bool { return t.nestedPublic }
func (t *typeDef) IsPrimitive() bool { return t.spec != nil && t.spec.Primitive }
func (t *typeDef) Module() metadata.Module { return t.module }

func (t *typeDef) DeclaringType() metadata.TypeDef {
	if t.declaring == nil {
		return nil
	}
	return t.declaring
}

func (t *typeDef) Methods() []metadata.MethodDef {
	result := make([]metadata.MethodDef, len(t.methods))
	for i, method := range t.methods {
		result[i] = method
	}
	return result
}

func (t *typeDef) Properties() []metadata.PropertyDef {
	result := make([]metadata.PropertyDef, len(t.properties))
	for i, p := range t.properties {
		result[i] = p
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

type member struct {
	name string
	ref  *typeRef
}

func (m *member) Name() string { return m.name }
func (m *member) PropertyType() metadata.TypeRef { return m.ref }
func (m *member) FieldType() metadata.TypeRef { return m.ref }

type methodDef struct {
	spec      *MethodSpec
	full      string
	declaring *typeDef
	returns   *typeRef
	params    []*typeRef
	body      []metadata.Instruction
}

// signature renders "Ret Decl::Name(P1,P2)"
func (md *methodDef) signature() string {
	ret := "System.Void"
	if md.returns != nil {
		ret = md.returns.String()
	}
	params := make([]string, len(md.params))
	for i, p := range md.params {
		params[i] = p.String()
	}
	return fmt.Sprintf("%s %s::%s(%s)", ret, md.declaring.full, md.spec.Name, strings.Join(params, ","))
}

func (md *methodDef) buildBody() {
	module := md.declaring.module.(*Module)
	for _, ins := range md.spec.Body {
		op := metadata.OpOther
		switch strings.ToLower(ins.Op) {
		case "call":
			op = metadata.OpCall
		case "callvirt":
			op = metadata.OpCallVirtual
		}

		var operand metadata.MethodRef
		if ins.Target != "" {
			operand = &methodRef{target: ins.Target, module: module}
		}
		md.body = append(md.body, metadata.Instruction{Op: op, Operand: operand})
	}
}

func (md *methodDef) Name() string { return md.spec.Name }
func (md *methodDef) FullName() string { return md.full }
func (md *methodDef) DeclaringType() metadata.TypeDef { return md.declaring }
func (md *methodDef) HasBody() bool { return !md.spec.Abstract }

func (md *methodDef) ReturnType() metadata.TypeRef {
	if md.returns == nil {
		return nil
	}
	return md.returns
}

func (md *methodDef) Parameters() []metadata.TypeRef {
	result := make([]metadata.TypeRef, len(md.params))
	for i, p := range md.params {
		result[i] = p
	}
	return result
}

func (md *methodDef) Body() ([]metadata.Instruction, error) {
	if md.spec.Abstract {
		return nil, fmt.Errorf("method %s has no body", md.full)
	}
	return md.body, nil
}

type methodRef struct {
	target string
	module *Module
}

func (r *methodRef) Resolve() metadata.MethodDef {
	if method := r.module.lookupMethod(r.target); method != nil {
		return method
	}
	return nil
}

func lastSegment(full string) string {
	if idx := strings.LastIndexAny(full, "./"); idx >= 0 {
		return full[idx+1:]
	}
	return full
}
