package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/codegraph/internal/metadata"
)

const sample = `
name: App
references: [Lib1, Lib2]
external:
  - module: Lib1
    name: Lib1.Base
    kind: class
types:
  - name: Widget
    namespace: A.B
    kind: class
    methods:
      - name: Build
        returns: A.B.Gadget
        parameters: ["A.B.Gadget[]", "List<A.B.Gadget>"]
        body:
          - op: ldarg
          - op: call
            target: A.B.Gadget::Run
          - op: callvirt
            target: Lib1.Base::Missing
      - name: Render
        abstract: true
    properties:
      - name: Parent
        type: Lib1.Base
    fields:
      - name: cache
        type: "Dictionary<System.String, A.B.Widget>"
  - name: Part
    declaring: A.B.Widget
    kind: valuetype
    visibility: private
  - name: Gadget
    namespace: A.B
    kind: interface
    visibility: internal
    methods:
      - name: Run
        signature: "System.Int32 A.B.Gadget::Run()"
`

func parse(t *testing.T, content string) *Module {
	t.Helper()
	module, err := NewReader(nil).Parse([]byte(content), "App.yaml")
	require.NoError(t, err)
	return module
}

func TestParse_Module(t *testing.T) {
	module := parse(t, sample)

	assert.Equal(t, "App", module.Name())
	assert.Equal(t, "App.yaml", module.Path())
	assert.Equal(t, ".", module.NamespaceSeparator())

	refs, err := module.References()
	require.NoError(t, err)
	assert.Equal(t, []string{"Lib1", "Lib2"}, refs)

	types, err := module.Types()
	require.NoError(t, err)
	require.Len(t, types, 3)

	names := make([]string, len(types))
	for i, def := range types {
		names[i] = def.FullName()
	}
	assert.Equal(t, []string{"A.B.Widget", "A.B.Widget/Part", "A.B.Gadget"}, names)
}

func TestParse_TypeFacts(t *testing.T) {
	module := parse(t, sample)

	widget := module.lookupType("A.B.Widget")
	require.NotNil(t, widget)
	assert.Equal(t, "Widget", widget.Name())
	assert.Equal(t, "A.B", widget.Namespace())
	assert.Equal(t, metadata.KindClass, widget.Kind())
	assert.True(t, widget.IsPublic())
	assert.Nil(t, widget.DeclaringType())

	part := module.lookupType("A.B.Widget/Part")
	require.NotNil(t, part)
	assert.Equal(t, metadata.KindStruct, part.Kind())
	assert.False(t, part.IsPublic())
	assert.False(t, part.IsNestedPublic())
	assert.Equal(t, "A.B", part.Namespace())
	assert.True(t, metadata.SameType(widget, part.DeclaringType()))

	gadget := module.lookupType("A.B.Gadget")
	require.NotNil(t, gadget)
	assert.False(t, gadget.IsPublic())
	assert.Equal(t, metadata.KindInterface, gadget.Kind())
}

func TestParse_Methods(t *testing.T) {
	module := parse(t, sample)
	widget := module.lookupType("A.B.Widget")

	methods := widget.Methods()
	require.Len(t, methods, 2)

	build := methods[0]
	assert.Equal(t, "Build", build.Name())
	assert.Equal(t, "A.B.Gadget A.B.Widget::Build(A.B.Gadget[],List<A.B.Gadget>)", build.FullName())
	assert.True(t, build.HasBody())

	params := build.Parameters()
	require.Len(t, params, 2)
	assert.True(t, params[0].IsArray())
	assert.Equal(t, "A.B.Gadget", params[0].ElementType().Resolve().FullName())
	require.Len(t, params[1].GenericArguments(), 1)
	assert.Nil(t, params[1].Resolve())

	body, err := build.Body()
	require.NoError(t, err)
	require.Len(t, body, 3)
	assert.False(t, body[0].IsCall())
	assert.Equal(t, metadata.OpCall, body[1].Op)
	assert.Equal(t, metadata.OpCallVirtual, body[2].Op)

	run := body[1].Operand.Resolve()
	require.NotNil(t, run)
	assert.Equal(t, "System.Int32 A.B.Gadget::Run()", run.FullName())
	assert.Nil(t, body[2].Operand.Resolve())

	render := methods[1]
	assert.Equal(t, "System.Void A.B.Widget::Render()", render.FullName())
	assert.False(t, render.HasBody())
	_, err = render.Body()
	assert.Error(t, err)
}

func TestParse_ExternalTypes(t *testing.T) {
	module := parse(t, sample)
	widget := module.lookupType("A.B.Widget")

	props := widget.Properties()
	require.Len(t, props, 1)
	base := props[0].PropertyType().Resolve()
	require.NotNil(t, base)
	assert.Equal(t, "Base", base.Name())
	assert.Equal(t, "Lib1", base.Module().Name())
	assert.False(t, metadata.SameModule(base.Module(), module))

	fields := widget.Fields()
	require.Len(t, fields, 1)
	assert.Equal(t, "cache", fields[0].Name())
	args := fields[0].FieldType().GenericArguments()
	require.Len(t, args, 2)
	assert.Nil(t, args[0].Resolve())
	assert.True(t, metadata.SameType(widget, args[1].Resolve()))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "missing name",
			content: "references: [Lib]\n",
			want:    "invalid manifest",
		},
		{
			name:    "unknown field",
			content: "name: App\nassembly: true\n",
			want:    "failed to parse manifest",
		},
		{
			name:    "bad visibility",
			content: "name: App\ntypes:\n  - name: T\n    kind: class\n    visibility: friend\n",
			want:    "invalid manifest",
		},
		{
			name:    "call without target",
			content: "name: App\ntypes:\n  - name: T\n    kind: class\n    methods:\n      - name: F\n        body:\n          - op: call\n",
			want:    "invalid manifest",
		},
		{
			name:    "duplicate type",
			content: "name: App\ntypes:\n  - name: T\n    kind: class\n  - name: T\n    kind: struct\n",
			want:    "duplicate type T",
		},
		{
			name:    "missing declaring type",
			content: "name: App\ntypes:\n  - name: Inner\n    declaring: Outer\n    kind: class\n",
			want:    "declaring type Outer of Inner not found",
		},
		{
			name:    "declaring cycle",
			content: "name: App\ntypes:\n  - name: X\n    declaring: Y/X\n    kind: class\n  - name: Y\n    declaring: X/Y\n    kind: class\n",
			want:    "declaring type",
		},
		{
			name:    "malformed generic",
			content: "name: App\ntypes:\n  - name: T\n    kind: class\n    properties:\n      - name: P\n        type: \"List<A\"\n",
			want:    "malformed type expression",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(nil).Parse([]byte(tt.content), "App.yaml")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_JSON(t *testing.T) {
	module := parse(t, `{"name": "App", "types": [{"name": "T", "namespace": "N", "kind": "enum"}]}`)

	types, err := module.Types()
	require.NoError(t, err)
	require.Len(t, types, 1)
	assert.Equal(t, metadata.KindEnum, types[0].Kind())
}

func TestParse_UnknownKind(t *testing.T) {
	module := parse(t, "name: App\ntypes:\n  - name: D\n    kind: delegate\n")

	types, err := module.Types()
	require.NoError(t, err)
	assert.Equal(t, metadata.KindUnknown, types[0].Kind())
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "App.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0644))

	module, err := NewReader(nil).Open(path)
	require.NoError(t, err)
	assert.Equal(t, "App", module.Name())
	assert.Equal(t, path, module.Path())

	_, err = NewReader(nil).Open(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLocate(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "App.yml")
	require.NoError(t, os.WriteFile(source, []byte("name: App\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Lib.json"), []byte(`{"name":"Lib"}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Both.yml"), []byte("name: Both\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Both.yaml"), []byte("name: Both\n"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "Dir.yaml"), 0755))

	r := NewReader(nil)

	path, ok := r.Locate(source, "Lib")
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "Lib.json"), path)

	path, ok = r.Locate(source, "Both")
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "Both.yml"), path, "source extension wins")

	_, ok = r.Locate(source, "Dir")
	assert.False(t, ok)

	_, ok = r.Locate(source, "Missing")
	assert.False(t, ok)
}

func TestIsManifest(t *testing.T) {
	assert.True(t, IsManifest("a/App.yaml"))
	assert.True(t, IsManifest("App.YML"))
	assert.True(t, IsManifest("App.json"))
	assert.False(t, IsManifest("go.mod"))
	assert.False(t, IsManifest("App.dll"))
}

func TestParseTypeRef(t *testing.T) {
	tests := []struct {
		expr string
		want string
		err  bool
	}{
		{expr: "A.B", want: "A.B"},
		{expr: " A.B[] ", want: "A.B[]"},
		{expr: "A[][]", want: "A[][]"},
		{expr: "Map<K, List<V>>", want: "Map<K,List<V>>"},
		{expr: "List<A[]>[]", want: "List<A[]>[]"},
		{expr: "", err: true},
		{expr: "A>", err: true},
		{expr: "List<A", err: true},
		{expr: "Map<K,>", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			ref, err := parseTypeRef(tt.expr, &Module{})
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ref.String())
		})
	}
}
