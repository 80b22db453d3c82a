package gosource

import (
	"fmt"
	"go/types"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/conduit-lang/codegraph/internal/metadata"
)

const loadMode = packages.NeedName |
	packages.NeedFiles |
	packages.NeedCompiledGoFiles |
	packages.NeedImports |
	packages.NeedDeps |
	packages.NeedTypes |
	packages.NeedSyntax |
	packages.NeedTypesInfo |
	packages.NeedTypesSizes

// Module is a Go module
type Module struct {
	logger     *zap.Logger
	name       string
	path       string
	dir        string
	references []string

	once    sync.Once
	loadErr error
	prog    *ssa.Program
	types   []*typeDef
	byName  map[string]*typeDef
}

func (m *Module) Name() string { return m.name }
func (m *Module) Path() string { return m.path }
func (m *Module) NamespaceSeparator() string { return "/" }

func (m *Module) References() ([]string, error) {
	return m.references, nil
}

func (m *Module) Types() ([]metadata.TypeDef, error) {
	m.once.Do(func() {
		m.loadErr = m.load()
	})
	if m.loadErr != nil {
		return nil, m.loadErr
	}

	result := make([]metadata.TypeDef, len(m.types))
	for i, def := range m.types {
		result[i] = def
	}
	return result, nil
}

// load type checks every package of the module and builds its SSA form
func (m *Module) load() error {
	cfg := &packages.Config{
		Mode: loadMode,
		Dir:  m.dir,
	}
	pkgs, err := packages.Load(cfg, "./...")
	if err != nil {
		return fmt.Errorf("loading packages of %s: %w", m.name, err)
	}
	for _, pkg := range pkgs {
		if len(pkg.Errors) > 0 {
			return fmt.Errorf("package %s has errors: %v", pkg.PkgPath, pkg.Errors[0])
		}
	}

	prog, ssaPkgs := ssautil.Packages(pkgs, ssa.InstantiateGenerics)
	prog.Build()
	m.prog = prog
	m.byName = make(map[string]*typeDef)

	order := make([]int, len(pkgs))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return pkgs[order[a]].PkgPath < pkgs[order[b]].PkgPath
	})

	for _, i := range order {
		if ssaPkgs[i] == nil || pkgs[i].Types == nil {
			continue
		}
		m.collect(pkgs[i].Types)
	}

	m.logger.Debug("loaded go packages",
		zap.String("module", m.name),
		zap.Int("packages", len(pkgs)),
		zap.Int("types", len(m.types)))
	return nil
}

// collect registers the named types declared at package scope
func (m *Module) collect(pkg *types.Package) {
	scope := pkg.Scope()
	enums := enumTypes(scope)

	for _, name := range scope.Names() {
		obj, ok := scope.Lookup(name).(*types.TypeName)
		if !ok || obj.IsAlias() {
			continue
		}
		named, ok := obj.Type().(*types.Named)
		if !ok {
			continue
		}

		def := &typeDef{
			module: m,
			obj:    obj,
			named:  named,
			kind:   kindOf(named, enums[obj]),
		}
		def.buildMembers()
		m.byName[def.FullName()] = def
		m.types = append(m.types, def)
	}
}

// resolveNamed returns the definition of a named type: one of the module's
// own types, an external stand-in, or nil for types without a package
// scope home (builtins, function local types)
func (m *Module) resolveNamed(named *types.Named) metadata.TypeDef {
	obj := named.Origin().Obj()
	pkg := obj.Pkg()
	if pkg == nil {
		return nil
	}
	if def, ok := m.byName[qualifiedName(obj)]; ok {
		return def
	}
	if obj.Parent() != pkg.Scope() {
		return nil
	}
	return &externalType{obj: obj}
}

// enumTypes finds the named types that have package level constants
func enumTypes(scope *types.Scope) map[*types.TypeName]bool {
	enums := make(map[*types.TypeName]bool)
	for _, name := range scope.Names() {
		c, ok := scope.Lookup(name).(*types.Const)
		if !ok {
			continue
		}
		if named, ok := c.Type().(*types.Named); ok {
			enums[named.Obj()] = true
		}
	}
	return enums
}

func kindOf(named *types.Named, hasConstants bool) metadata.TypeKind {
	switch named.Underlying().(type) {
	case *types.Struct:
		return metadata.KindStruct
	case *types.Interface:
		return metadata.KindInterface
	case *types.Basic:
		if hasConstants {
			return metadata.KindEnum
		}
		return metadata.KindClass
	default:
		// slices, maps, funcs and channels with methods of their own
		return metadata.KindClass
	}
}

func qualifiedName(obj *types.TypeName) string {
	return obj.Pkg().Path() + "." + obj.Name()
}
