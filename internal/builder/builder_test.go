package builder

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/conduit-lang/codegraph/internal/graph"
	"github.com/conduit-lang/codegraph/internal/metadata/manifest"
)

func writeManifest(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func build(t *testing.T, opts Options, content string) (*graph.Graph, *Builder) {
	t.Helper()
	path := writeManifest(t, t.TempDir(), "App", content)
	g := graph.New()
	b := New(g, manifest.NewReader(nil), opts, nil)
	require.NoError(t, b.Generate(path))
	return g, b
}

func mustNode(t *testing.T, g *graph.Graph, id string) *graph.Node {
	t.Helper()
	node, ok := g.Node(id)
	require.True(t, ok, "expected node %q", id)
	return node
}

func hasEdge(g *graph.Graph, from, to string, category graph.LinkCategory) bool {
	for _, e := range g.Edges() {
		if e.Source.ID == from && e.Target.ID == to && e.Category == category {
			return true
		}
	}
	return false
}

func TestNamespaceChain(t *testing.T) {
	g, _ := build(t, Options{NamespaceDependencies: true}, `
name: App
types:
  - name: Widget
    namespace: A.B.C
    kind: class
`)

	module := g.Nodes()[0]
	require.Equal(t, graph.CategoryAssembly, module.Category)
	assert.Equal(t, "App", module.Label)
	a := mustNode(t, g, "A")
	ab := mustNode(t, g, "A.B")
	abc := mustNode(t, g, "A.B.C")
	widget := mustNode(t, g, "A.B.C.Widget")

	assert.Equal(t, graph.CategoryNamespace, abc.Category)
	assert.Equal(t, "C", abc.Label)
	assert.Equal(t, "Widget", widget.Label)
	assert.Equal(t, graph.CategoryClass, widget.Category)

	assert.Same(t, module, g.Container(a))
	assert.Same(t, a, g.Container(ab))
	assert.Same(t, ab, g.Container(abc))
	assert.Same(t, abc, g.Container(widget))

	for _, n := range []*graph.Node{module, a, ab, abc} {
		assert.True(t, n.IsGroup, "%s should be a group", n.ID)
	}
	assert.False(t, widget.IsGroup)
}

func TestWithoutNamespaces_TypesUnderModule(t *testing.T) {
	g, _ := build(t, Options{}, `
name: App
types:
  - name: Widget
    namespace: A.B
    kind: struct
`)

	widget := mustNode(t, g, "A.B.Widget")
	assert.Equal(t, graph.CategoryStruct, widget.Category)
	assert.Equal(t, graph.CategoryAssembly, g.Container(widget).Category)

	_, ok := g.Node("A")
	assert.False(t, ok)
}

func TestNestedType(t *testing.T) {
	g, _ := build(t, Options{NamespaceDependencies: true}, `
name: App
types:
  - name: Inner
    declaring: A.Outer
    kind: enum
  - name: Outer
    namespace: A
    kind: class
`)

	outer := mustNode(t, g, "A.Outer")
	inner := mustNode(t, g, "A.Outer/Inner")

	assert.Equal(t, graph.CategoryEnum, inner.Category)
	assert.Same(t, outer, g.Container(inner))
	assert.True(t, outer.IsGroup)
	assert.Len(t, g.EdgesTo(inner, graph.LinkContains), 1)
}

func TestNestedInsideFilteredType(t *testing.T) {
	g, _ := build(t, Options{}, `
name: App
types:
  - name: Hidden
    namespace: A
    kind: class
    visibility: internal
  - name: Inner
    declaring: A.Hidden
    kind: class
`)

	_, ok := g.Node("A.Hidden")
	assert.False(t, ok)
	_, ok = g.Node("A.Hidden/Inner")
	assert.False(t, ok)
}

const visibilityManifest = `
name: App
types:
  - name: Api
    namespace: A
    kind: class
    methods:
      - name: Get
        returns: A.Hidden
        parameters: [A.Hidden]
  - name: Hidden
    namespace: A
    kind: class
    visibility: internal
    methods:
      - name: Back
        returns: A.Api
`

func TestVisibilityFilter(t *testing.T) {
	g, b := build(t, Options{}, visibilityManifest)

	_, ok := g.Node("A.Hidden")
	assert.False(t, ok)

	api := mustNode(t, g, "A.Api")
	assert.Empty(t, g.EdgesFrom(api, graph.LinkReferences))
	assert.Equal(t, 1, b.Stats().TypesFiltered)
	assert.Equal(t, 1, b.Stats().TypesVisited)
}

func TestVisibilityFilter_IncludePrivate(t *testing.T) {
	g, _ := build(t, Options{PrivateDependencies: true}, visibilityManifest)

	mustNode(t, g, "A.Hidden")
	assert.True(t, hasEdge(g, "A.Api", "A.Hidden", graph.LinkReferences))
	assert.True(t, hasEdge(g, "A.Hidden", "A.Api", graph.LinkReferences))
}

func TestSelfReference(t *testing.T) {
	g, _ := build(t, Options{}, `
name: App
types:
  - name: Node
    namespace: A
    kind: class
    methods:
      - name: Next
        returns: A.Node
        parameters: [A.Node, "A.Node[]"]
    properties:
      - name: Parent
        type: A.Node
`)

	node := mustNode(t, g, "A.Node")
	refs := g.EdgesFrom(node, graph.LinkReferences)
	require.Len(t, refs, 1)
	assert.Same(t, node, refs[0].Target)
}

func TestCrossModuleExclusion(t *testing.T) {
	g, b := build(t, Options{FieldDependencies: true}, `
name: App
external:
  - module: Lib
    name: Lib.Thing
    kind: class
types:
  - name: Holder
    namespace: A
    kind: class
    fields:
      - name: thing
        type: Lib.Thing
      - name: count
        type: System.Int32
`)

	holder := mustNode(t, g, "A.Holder")
	assert.Empty(t, g.EdgesFrom(holder, graph.LinkReferences))
	_, ok := g.Node("Lib.Thing")
	assert.False(t, ok)
	assert.Equal(t, 1, b.Stats().ExternalReferences)
	assert.Equal(t, 1, b.Stats().UnresolvedReferences)
}

func TestFieldsOnlyWhenEnabled(t *testing.T) {
	content := `
name: App
types:
  - name: Holder
    namespace: A
    kind: class
    fields:
      - name: part
        type: A.Part
  - name: Part
    namespace: A
    kind: struct
`
	g, _ := build(t, Options{}, content)
	assert.False(t, hasEdge(g, "A.Holder", "A.Part", graph.LinkReferences))

	g, _ = build(t, Options{FieldDependencies: true}, content)
	assert.True(t, hasEdge(g, "A.Holder", "A.Part", graph.LinkReferences))
}

func TestGenericAndArrayReferences(t *testing.T) {
	g, _ := build(t, Options{}, `
name: App
types:
  - name: Store
    namespace: A
    kind: class
    methods:
      - name: All
        returns: "Dictionary<A.Key, List<A.Item>>"
        parameters: ["A.Filter[]"]
    properties:
      - name: Box
        type: "A.Box<A.Item>"
  - name: Key
    namespace: A
    kind: struct
  - name: Item
    namespace: A
    kind: class
  - name: Filter
    namespace: A
    kind: interface
  - name: Box
    namespace: A
    kind: class
`)

	for _, target := range []string{"A.Key", "A.Item", "A.Filter", "A.Box"} {
		assert.True(t, hasEdge(g, "A.Store", target, graph.LinkReferences), "missing reference to %s", target)
	}
	assert.Equal(t, graph.CategoryInterface, mustNode(t, g, "A.Filter").Category)
}

func TestPrimitiveAndSyntheticTypesExcluded(t *testing.T) {
	g, b := build(t, Options{PrivateDependencies: true}, `
name: App
types:
  - name: <Module>
    kind: class
  - name: <>c__DisplayClass1
    namespace: A
    kind: class
  - name: Int32
    namespace: System
    kind: struct
    primitive: true
  - name: String
    namespace: System
    kind: class
  - name: Uses
    namespace: A
    kind: class
    methods:
      - name: Count
        returns: System.Int32
        parameters: [System.String]
`)

	assert.Equal(t, 2, g.NodeCount(), "module and A.Uses only")
	assert.Equal(t, 4, b.Stats().TypesFiltered)
	uses := mustNode(t, g, "A.Uses")
	assert.Empty(t, g.EdgesFrom(uses, graph.LinkReferences))
}

func TestCallGraph(t *testing.T) {
	g, b := build(t, Options{MethodCallDependencies: true}, `
name: M
types:
  - name: T
    namespace: N
    kind: class
    methods:
      - name: F
        body:
          - op: ldarg
          - op: call
            target: N.U::G
          - op: callvirt
            target: N.T::H
          - op: call
            target: Ext.Lib::Missing
          - op: ret
      - name: H
        abstract: true
  - name: U
    namespace: N
    kind: class
    methods:
      - name: G
        parameters: [N.T]
`)

	f := mustNode(t, g, "System.Void N.T::F()")
	gm := mustNode(t, g, "System.Void N.U::G(N.T)")
	h := mustNode(t, g, "System.Void N.T::H()")

	assert.Equal(t, graph.CategoryMethod, f.Category)
	assert.Equal(t, "F", f.Label)
	assert.Same(t, mustNode(t, g, "N.T"), g.Container(f))
	assert.Same(t, mustNode(t, g, "N.U"), g.Container(gm))
	assert.Same(t, mustNode(t, g, "N.T"), g.Container(h))

	assert.True(t, hasEdge(g, f.ID, gm.ID, graph.LinkCalls))
	assert.True(t, hasEdge(g, f.ID, h.ID, graph.LinkCalls))
	assert.Len(t, g.EdgesFrom(f, graph.LinkCalls), 2)
	assert.Equal(t, 2, b.Stats().Calls)
	assert.Equal(t, 1, b.Stats().CallsSkipped)
}

func TestCallGraphDisabled(t *testing.T) {
	g, _ := build(t, Options{}, `
name: M
types:
  - name: T
    kind: class
    methods:
      - name: F
        body:
          - op: call
            target: T::F
`)

	assert.Zero(t, g.Stats().Nodes[graph.CategoryMethod])
	assert.Zero(t, g.Stats().Links[graph.LinkCalls])
}

func TestAssemblyMode(t *testing.T) {
	dir := t.TempDir()
	app := writeManifest(t, dir, "App", "name: App\nreferences: [Lib1, Lib2]\n")
	writeManifest(t, dir, "Lib1", "name: Lib1\nreferences: [Lib2]\n")

	g := graph.New()
	b := New(g, manifest.NewReader(nil), Options{AssemblyDependencies: true}, nil)
	require.NoError(t, b.Generate(app))

	assert.Equal(t, 3, g.NodeCount())
	assert.Equal(t, 3, g.EdgeCount())
	assert.True(t, hasEdge(g, app, "Lib1", graph.LinkPlain))
	assert.True(t, hasEdge(g, app, "Lib2", graph.LinkPlain))
	assert.True(t, hasEdge(g, "Lib1", "Lib2", graph.LinkPlain))
	assert.Equal(t, "App", mustNode(t, g, app).Label)
	assert.Equal(t, 2, b.Stats().Modules)
}

func TestAssemblyMode_Cycle(t *testing.T) {
	dir := t.TempDir()
	a := writeManifest(t, dir, "A", "name: A\nreferences: [B]\n")
	writeManifest(t, dir, "B", "name: B\nreferences: [a]\n")

	g := graph.New()
	b := New(g, manifest.NewReader(nil), Options{AssemblyDependencies: true}, nil)
	require.NoError(t, b.Generate(a))

	assert.True(t, hasEdge(g, a, "B", graph.LinkPlain))
	assert.True(t, hasEdge(g, "B", "a", graph.LinkPlain))
	assert.Equal(t, 2, g.EdgeCount())
}

func TestUnknownKindIsFatalAndRollsBack(t *testing.T) {
	dir := t.TempDir()
	good := writeManifest(t, dir, "Good", `
name: Good
types:
  - name: Fine
    namespace: Shared
    kind: class
`)
	bad := writeManifest(t, dir, "Bad", `
name: Bad
types:
  - name: Ok
    namespace: Other.Space
    kind: class
  - name: Strange
    namespace: Shared.Inner
    kind: delegate
`)

	g := graph.New()
	b := New(g, manifest.NewReader(nil), Options{NamespaceDependencies: true}, nil)
	require.NoError(t, b.Generate(good))
	before := g.NodeCount()
	beforeStats := b.Stats()

	err := b.Generate(bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownTypeKind)

	assert.Equal(t, before, g.NodeCount())
	_, ok := g.Node("Other.Space")
	assert.False(t, ok)
	_, ok = g.Node(bad)
	assert.False(t, ok)
	assert.Equal(t, beforeStats, b.Stats())

	// the namespace cache must not hand out rolled back nodes
	require.NoError(t, b.Generate(writeManifest(t, dir, "Later", `
name: Later
types:
  - name: Again
    namespace: Other.Space
    kind: class
`)))
	space := mustNode(t, g, "Other.Space")
	assert.Same(t, space, g.Container(mustNode(t, g, "Other.Space.Again")))
}

func TestSharedNamespaceAcrossModules(t *testing.T) {
	dir := t.TempDir()
	one := writeManifest(t, dir, "One", `
name: One
types:
  - name: X
    namespace: A
    kind: class
`)
	two := writeManifest(t, dir, "Two", `
name: Two
types:
  - name: Y
    namespace: A.B
    kind: class
`)

	g := graph.New()
	b := New(g, manifest.NewReader(nil), Options{NamespaceDependencies: true}, nil)
	require.NoError(t, b.Generate(one))
	require.NoError(t, b.Generate(two))

	a := mustNode(t, g, "A")
	assert.Len(t, g.EdgesTo(a, graph.LinkContains), 1)
	assert.Same(t, mustNode(t, g, one), g.Container(a))
	assert.Same(t, a, g.Container(mustNode(t, g, "A.B")))
	assertForest(t, g)
}

const richManifest = `
name: Rich
types:
  - name: Service
    namespace: Co.Core
    kind: class
    methods:
      - name: Run
        returns: Co.Core.Result
        parameters: ["List<Co.Data.Row>"]
        body:
          - op: call
            target: Co.Data.Repo::Load
          - op: callvirt
            target: Co.Core.Service/Options::Apply
  - name: Options
    declaring: Co.Core.Service
    kind: class
    methods:
      - name: Apply
        returns: Co.Core.Service
  - name: Result
    namespace: Co.Core
    kind: struct
  - name: Row
    namespace: Co.Data
    kind: class
  - name: Repo
    namespace: Co.Data
    kind: interface
    methods:
      - name: Load
        returns: "Co.Data.Row[]"
        body:
          - op: call
            target: Co.Core.Service::Run
`

func TestContainmentIsForest(t *testing.T) {
	g, _ := build(t, Options{NamespaceDependencies: true, MethodCallDependencies: true, FieldDependencies: true}, richManifest)
	assertForest(t, g)
}

func TestNodeCountIndependentOfOrder(t *testing.T) {
	opts := Options{NamespaceDependencies: true, MethodCallDependencies: true}
	forward, _ := build(t, opts, richManifest)

	reversed := `
name: Rich
types:
  - name: Repo
    namespace: Co.Data
    kind: interface
    methods:
      - name: Load
        returns: "Co.Data.Row[]"
        body:
          - op: call
            target: Co.Core.Service::Run
  - name: Row
    namespace: Co.Data
    kind: class
  - name: Result
    namespace: Co.Core
    kind: struct
  - name: Options
    declaring: Co.Core.Service
    kind: class
    methods:
      - name: Apply
        returns: Co.Core.Service
  - name: Service
    namespace: Co.Core
    kind: class
    methods:
      - name: Run
        returns: Co.Core.Result
        parameters: ["List<Co.Data.Row>"]
        body:
          - op: call
            target: Co.Data.Repo::Load
          - op: callvirt
            target: Co.Core.Service/Options::Apply
`
	backward, _ := build(t, opts, reversed)

	assert.Equal(t, forward.NodeCount(), backward.NodeCount())
	assert.Equal(t, forward.EdgeCount(), backward.EdgeCount())
}

// assertForest checks that every node has at most one Contains parent and
// that following containers never loops
func assertForest(t *testing.T, g *graph.Graph) {
	t.Helper()
	for _, node := range g.Nodes() {
		incoming := g.EdgesTo(node, graph.LinkContains)
		assert.LessOrEqual(t, len(incoming), 1, "node %s has %d containers", node.ID, len(incoming))

		seen := map[*graph.Node]bool{node: true}
		for parent := g.Container(node); parent != nil; parent = g.Container(parent) {
			require.False(t, seen[parent], "containment cycle through %s", parent.ID)
			seen[parent] = true
		}
	}
}

func TestModuleLogCountsArePerModule(t *testing.T) {
	dir := t.TempDir()
	content := `
name: %s
external:
  - module: Lib
    name: Lib.Thing
    kind: class
types:
  - name: Holder
    namespace: %s
    kind: class
    fields:
      - name: thing
        type: Lib.Thing
      - name: count
        type: System.Int32
`
	first := writeManifest(t, dir, "First", fmt.Sprintf(content, "First", "A"))
	second := writeManifest(t, dir, "Second", fmt.Sprintf(content, "Second", "B"))

	core, logs := observer.New(zapcore.DebugLevel)
	b := New(graph.New(), manifest.NewReader(nil), Options{FieldDependencies: true}, zap.New(core))
	require.NoError(t, b.Generate(first))
	require.NoError(t, b.Generate(second))

	entries := logs.FilterMessage("graphed module").All()
	require.Len(t, entries, 2)
	ids := map[string]bool{}
	for _, entry := range entries {
		fields := entry.ContextMap()
		assert.EqualValues(t, 1, fields["external_references"])
		assert.EqualValues(t, 1, fields["unresolved_references"])
		id, ok := fields["update"].(string)
		require.True(t, ok)
		_, err := uuid.Parse(id)
		assert.NoError(t, err)
		ids[id] = true
	}
	assert.Len(t, ids, 2, "each module runs in its own update scope")
	assert.Equal(t, 2, b.Stats().ExternalReferences)
}

func TestDiscardedModuleLogsUpdate(t *testing.T) {
	bad := writeManifest(t, t.TempDir(), "Bad", `
name: Bad
types:
  - name: Strange
    namespace: X
    kind: delegate
`)

	core, logs := observer.New(zapcore.DebugLevel)
	b := New(graph.New(), manifest.NewReader(nil), Options{}, zap.New(core))
	require.ErrorIs(t, b.Generate(bad), ErrUnknownTypeKind)

	entries := logs.FilterMessage("discarding module").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, bad, fields["path"])
	_, err := uuid.Parse(fields["update"].(string))
	assert.NoError(t, err)
}
