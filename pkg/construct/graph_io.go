package construct

import (
	"fmt"
	"reflect"

	"gopkg.in/yaml.v3"
)

// YamlGraph renders a Graph as YAML: every resource with its Go kind, then every edge as `source -> target`.
type YamlGraph struct {
	Graph *Graph
	// Filters, when set, limit the output to resources matching any of them and the edges that touch those.
	Filters []ResourceId
}

func (g YamlGraph) included(id ResourceId) bool {
	if len(g.Filters) == 0 {
		return true
	}
	for _, f := range g.Filters {
		if f.Matches(id) {
			return true
		}
	}
	return false
}

// nullNode is used to render as nothing in the YAML output
// useful for empty mappings, for example instead of `edges: {}`
// it would render as `edges:`.
var nullNode = &yaml.Node{
	Kind:  yaml.ScalarNode,
	Tag:   "!!null",
	Value: "",
}

func scalar(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: v}
}

func (g YamlGraph) MarshalYAML() (interface{}, error) {
	topo, err := TopologicalSort(g.Graph.underlying)
	if err != nil {
		return nil, err
	}

	resources := &yaml.Node{Kind: yaml.MappingNode}
	for _, rid := range topo {
		if !g.included(rid) {
			continue
		}
		r := g.Graph.GetResource(rid)
		resources.Content = append(resources.Content, scalar(rid.String()), scalar(kindOf(r)))
	}
	if len(resources.Content) == 0 {
		resources = nullNode
	}

	deps, err := g.Graph.ListDependencies()
	if err != nil {
		return nil, err
	}
	edges := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range deps {
		if !g.included(e.Source) && !g.included(e.Target) {
			continue
		}
		edges.Content = append(edges.Content, scalar(fmt.Sprintf("%s -> %s", e.Source, e.Target)), nullNode)
	}
	if len(edges.Content) == 0 {
		edges = nullNode
	}

	return &yaml.Node{
		Kind: yaml.MappingNode,
		Content: []*yaml.Node{
			scalar("resources"),
			resources,
			scalar("edges"),
			edges,
		},
	}, nil
}

func kindOf(r Resource) string {
	t := reflect.TypeOf(r)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// GraphToYAML renders g in the YamlGraph format, limited to the resources matching filters if any are given.
func GraphToYAML(g *Graph, filters ...ResourceId) ([]byte, error) {
	return yaml.Marshal(YamlGraph{Graph: g, Filters: filters})
}
