package construct

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"slices"
	"strings"

	"github.com/dominikbraun/graph"
	"go.uber.org/zap"
)

type (
	// Graph holds the resources of a single stack. An edge `source -> target` means that source depends on
	// target, so target must exist before source can be created.
	Graph struct {
		underlying graph.Graph[ResourceId, Resource]
	}

	Edge = graph.Edge[ResourceId]
)

func ResourceHasher(r Resource) ResourceId {
	return r.Id()
}

func NewGraph() *Graph {
	return &Graph{
		underlying: graph.New(ResourceHasher, graph.Directed(), graph.Acyclic(), graph.PreventCycles()),
	}
}

// AddResource adds r to the graph. Adding a resource whose id is already present is a no-op.
func (g *Graph) AddResource(r Resource) error {
	if r == nil || isNilResource(r) {
		return errors.New("cannot add nil resource")
	}
	if r.Id().IsZero() {
		return fmt.Errorf("cannot add resource %T with an empty id", r)
	}
	err := g.underlying.AddVertex(r)
	if errors.Is(err, graph.ErrVertexAlreadyExists) {
		if existing, _ := g.underlying.Vertex(r.Id()); existing != r {
			zap.S().Debugf("ignoring second declaration of %s", r.Id())
		}
		return nil
	}
	return err
}

// AddDependency adds an edge from source to target, adding both resources if they are missing.
func (g *Graph) AddDependency(source, target Resource) error {
	if err := g.AddResource(source); err != nil {
		return err
	}
	if err := g.AddResource(target); err != nil {
		return err
	}
	return g.addEdge(source.Id(), target.Id())
}

func (g *Graph) addEdge(source, target ResourceId) error {
	if source == target {
		return nil
	}
	err := g.underlying.AddEdge(source, target)
	switch {
	case errors.Is(err, graph.ErrEdgeAlreadyExists):
		return nil
	case errors.Is(err, graph.ErrEdgeCreatesCycle):
		return fmt.Errorf("dependency %s -> %s would create a cycle: %w", source, target, err)
	case err != nil:
		return fmt.Errorf("could not add dependency %s -> %s: %w", source, target, err)
	}
	return nil
}

func (g *Graph) GetResource(id ResourceId) Resource {
	r, err := g.underlying.Vertex(id)
	if err != nil {
		return nil
	}
	return r
}

// GetResourceOfType returns the resource with id if it exists and is of type T.
func GetResourceOfType[T Resource](g *Graph, id ResourceId) (T, bool) {
	var zero T
	r := g.GetResource(id)
	if r == nil {
		return zero, false
	}
	t, ok := r.(T)
	return t, ok
}

// ListResources returns every resource in stable topological order (dependents first).
func (g *Graph) ListResources() []Resource {
	ids, err := TopologicalSort(g.underlying)
	if err != nil {
		zap.S().With(zap.Error(err)).Error("could not sort resources")
		return nil
	}
	resources := make([]Resource, 0, len(ids))
	for _, id := range ids {
		if r := g.GetResource(id); r != nil {
			resources = append(resources, r)
		}
	}
	return resources
}

func (g *Graph) ListDependencies() ([]Edge, error) {
	edges, err := g.underlying.Edges()
	if err != nil {
		return nil, err
	}
	sortEdges(edges)
	return edges, nil
}

// DirectDownstreamDependencies returns the resources that r depends on directly.
func (g *Graph) DirectDownstreamDependencies(r Resource) []Resource {
	adj, err := g.underlying.AdjacencyMap()
	if err != nil {
		return nil
	}
	return g.resolveIds(keys(adj[r.Id()]))
}

// DirectUpstreamDependencies returns the resources that depend on r directly.
func (g *Graph) DirectUpstreamDependencies(r Resource) []Resource {
	pred, err := g.underlying.PredecessorMap()
	if err != nil {
		return nil
	}
	return g.resolveIds(keys(pred[r.Id()]))
}

func (g *Graph) resolveIds(ids []ResourceId) []Resource {
	sortIds(ids)
	resources := make([]Resource, 0, len(ids))
	for _, id := range ids {
		if r := g.GetResource(id); r != nil {
			resources = append(resources, r)
		}
	}
	return resources
}

func (g *Graph) Len() int {
	n, err := g.underlying.Order()
	if err != nil {
		return 0
	}
	return n
}

// AddDependenciesReflect adds an edge from r to every resource referenced by its fields, either directly as a
// Resource or through an IaCValue. Nested structs, pointers, slices, maps and interfaces are walked; other
// Resources are not descended into. Every IaCValue must reference a resource already in the graph.
func (g *Graph) AddDependenciesReflect(r Resource) error {
	if err := g.AddResource(r); err != nil {
		return err
	}
	w := &dependencyWalker{graph: g, source: r.Id(), seen: make(map[uintptr]struct{})}
	w.walkFields(reflect.ValueOf(r))
	return w.errs
}

type dependencyWalker struct {
	graph  *Graph
	source ResourceId
	seen   map[uintptr]struct{}
	errs   error
}

var (
	resourceType = reflect.TypeOf((*Resource)(nil)).Elem()
	iacValueType = reflect.TypeOf(IaCValue{})
)

// walkFields walks the fields of the source resource itself, which would otherwise be skipped for implementing
// Resource.
func (w *dependencyWalker) walkFields(v reflect.Value) {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < v.NumField(); i++ {
		if !v.Type().Field(i).IsExported() {
			continue
		}
		w.walk(v.Field(i))
	}
}

func (w *dependencyWalker) walk(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Type() == iacValueType {
		w.addIaCValue(v.Interface().(IaCValue))
		return
	}
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return
		}
		w.walk(v.Elem())
		return
	}
	if v.Type().Implements(resourceType) && v.CanInterface() {
		if v.Kind() == reflect.Pointer && v.IsNil() {
			return
		}
		target := v.Interface().(Resource)
		if err := w.graph.AddDependency(w.graph.mustGet(w.source), target); err != nil {
			w.errs = errors.Join(w.errs, err)
		}
		return
	}

	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return
		}
		if _, ok := w.seen[v.Pointer()]; ok {
			return
		}
		w.seen[v.Pointer()] = struct{}{}
		w.walk(v.Elem())

	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if v.Type().Field(i).IsExported() {
				w.walk(v.Field(i))
			}
		}

	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			w.walk(v.Index(i))
		}

	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			w.walk(iter.Value())
		}
	}
}

func (w *dependencyWalker) addIaCValue(v IaCValue) {
	if v.ResourceId.IsZero() || v.ResourceId == w.source {
		return
	}
	if w.graph.GetResource(v.ResourceId) == nil {
		w.errs = errors.Join(w.errs, fmt.Errorf("%s references %s which is not in the graph", w.source, v.ResourceId))
		return
	}
	if err := w.graph.addEdge(w.source, v.ResourceId); err != nil {
		w.errs = errors.Join(w.errs, err)
	}
}

func (g *Graph) mustGet(id ResourceId) Resource {
	r := g.GetResource(id)
	if r == nil {
		panic(fmt.Sprintf("resource %s not in graph", id))
	}
	return r
}

func isNilResource(r Resource) bool {
	v := reflect.ValueOf(r)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

func (g *Graph) String() string {
	w := new(strings.Builder)
	if err := stringTo(g, w); err != nil {
		return fmt.Sprintf("<error: %v>", err)
	}
	return w.String()
}

func stringTo(g *Graph, w io.Writer) error {
	topo, err := TopologicalSort(g.underlying)
	if err != nil {
		return err
	}
	adjacent, err := g.underlying.AdjacencyMap()
	if err != nil {
		return err
	}

	var errs error
	write := func(format string, args ...any) {
		_, err := fmt.Fprintf(w, format, args...)
		errs = errors.Join(errs, err)
	}

	for _, id := range topo {
		write("%q", id)

		targets := keys(adjacent[id])
		sortIds(targets)
		if len(targets) > 1 {
			write("\n")
		} else if len(targets) == 1 {
			write(" ")
		}

		for _, t := range targets {
			write("-> %q\n", t)
		}
		if len(targets) == 0 {
			write("\n")
		}
	}
	return errs
}

func keys[V any](m map[ResourceId]V) []ResourceId {
	ids := make([]ResourceId, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	return ids
}

func sortEdges(edges []Edge) {
	slices.SortFunc(edges, func(a, b Edge) int {
		if c := compareIds(a.Source, b.Source); c != 0 {
			return c
		}
		return compareIds(a.Target, b.Target)
	})
}
