package constructtest

import (
	"testing"

	"github.com/flab-reels/authcdk/pkg/construct"
	"github.com/stretchr/testify/assert"
)

type (
	// StringDep is a dependency written as resource id strings, eg. `aws:vpc:main`.
	StringDep struct {
		Source string
		Target string
	}

	ResourcesExpectation struct {
		Nodes []string
		Deps  []StringDep

		// AssertSubset assert the dag contains all the `.Nodes` and `.Deps`. If false,
		// checks full equality.
		AssertSubset bool
	}
)

func (expect ResourcesExpectation) Assert(t *testing.T, dag *construct.Graph) {
	var res []string
	for _, r := range dag.ListResources() {
		res = append(res, r.Id().String())
	}
	if expect.AssertSubset {
		assert.Subset(t, res, expect.Nodes)
	} else {
		assert.ElementsMatch(t, expect.Nodes, res)
	}

	edges, err := dag.ListDependencies()
	if !assert.NoError(t, err) {
		return
	}
	var dep []StringDep
	for _, e := range edges {
		dep = append(dep, StringDep{Source: e.Source.String(), Target: e.Target.String()})
	}

	if expect.AssertSubset {
		assert.Subset(t, dep, expect.Deps)
	} else {
		assert.ElementsMatch(t, expect.Deps, dep)
	}
}

// AddAllDependencies adds the dependencies of every resource in dag, as a stack does once it is fully declared.
func AddAllDependencies(t *testing.T, dag *construct.Graph) {
	for _, r := range dag.ListResources() {
		assert.NoError(t, dag.AddDependenciesReflect(r), "adding dependencies of %s", r.Id())
	}
}
