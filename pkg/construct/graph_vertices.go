package construct

import (
	"errors"
	"fmt"

	"github.com/dominikbraun/graph"
)

// TopologicalSort orders the ids of g so that every resource comes before the resources it depends on. Resources
// that become ready at the same time are ordered by [ResourceIdLess], so equal graphs always sort the same way.
func TopologicalSort[T any](g graph.Graph[ResourceId, T]) ([]ResourceId, error) {
	dependents, dependencies, err := neighbours(g)
	if err != nil {
		return nil, err
	}
	return kahnSort(dependents, dependencies)
}

// ReverseTopologicalSort orders the ids of g so that every resource comes after the resources it depends on, which
// is the order they are created in.
func ReverseTopologicalSort[T any](g graph.Graph[ResourceId, T]) ([]ResourceId, error) {
	dependents, dependencies, err := neighbours(g)
	if err != nil {
		return nil, err
	}
	return kahnSort(dependencies, dependents)
}

type adjacency = map[ResourceId]map[ResourceId]graph.Edge[ResourceId]

func neighbours[T any](g graph.Graph[ResourceId, T]) (dependents, dependencies adjacency, err error) {
	if !g.Traits().IsDirected {
		return nil, nil, fmt.Errorf("topological sort cannot be computed on undirected graph")
	}
	dependents, err = g.PredecessorMap()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get predecessor map: %w", err)
	}
	dependencies, err = g.AdjacencyMap()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get adjacency map: %w", err)
	}
	return dependents, dependencies, nil
}

// kahnSort places an id once all of its blockers are placed, then unblocks the ids it leads to.
func kahnSort(blockers, leadsTo adjacency) ([]ResourceId, error) {
	waiting := make(map[ResourceId]int, len(blockers))
	var ready []ResourceId
	for id, bs := range blockers {
		waiting[id] = len(bs)
		if len(bs) == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]ResourceId, 0, len(blockers))
	for len(ready) > 0 {
		sortIds(ready)
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		for next := range leadsTo[id] {
			waiting[next]--
			if waiting[next] == 0 {
				ready = append(ready, next)
			}
		}
	}
	if len(order) != len(blockers) {
		return nil, fmt.Errorf("graph contains a cycle: sorted %d of %d resources", len(order), len(blockers))
	}
	return order, nil
}

// WalkGraphFunc is called for each resource by [WalkGraph]. nerr is the error returned by the previous call.
type WalkGraphFunc func(id ResourceId, resource Resource, nerr error) error

// StopWalk ends a walk when returned from a WalkGraphFunc. The walk then returns the previous call's error.
var StopWalk = errors.New("stop walking")

// WalkGraph visits every resource after the resources it depends on. It returns the error of the last call.
func WalkGraph(g *Graph, fn WalkGraphFunc) (nerr error) {
	ids, err := ReverseTopologicalSort(g.underlying)
	if err != nil {
		return err
	}
	for _, id := range ids {
		r, err := g.underlying.Vertex(id)
		if err != nil {
			return err
		}
		err = fn(id, r, nerr)
		if errors.Is(err, StopWalk) {
			return nerr
		}
		nerr = err
	}
	return nerr
}
