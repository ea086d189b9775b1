package cloudformation

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/flab-reels/authcdk/pkg/construct"
	"github.com/flab-reels/authcdk/pkg/sanitization"
	"github.com/iancoleman/strcase"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type (
	// Compiler turns the graph of a single stack into a [Template].
	Compiler struct {
		Description string

		graph *construct.Graph
		ids   map[construct.ResourceId]string
	}
)

// LogicalId is the id a resource is declared under: its name in UpperCamel followed by a short hash of the full
// resource id, so resources sharing a name but not a type never collide.
func LogicalId(id construct.ResourceId) string {
	sum := sha256.Sum256([]byte(id.String()))
	return sanitization.LogicalIdSanitizer.Apply(strcase.ToCamel(id.Name)) + hex.EncodeToString(sum[:4])
}

// Compile renders every resource, parameter and output of dag. All errors found are reported together.
func (c *Compiler) Compile(dag *construct.Graph) (*Template, error) {
	c.graph = dag
	c.ids = make(map[construct.ResourceId]string)

	t := &Template{
		AWSTemplateFormatVersion: TemplateFormatVersion,
		Description:              c.Description,
		Parameters:               make(map[string]map[string]any),
		Resources:                make(map[string]Resource),
		Outputs:                  make(map[string]map[string]any),
	}

	var errs error
	resources := dag.ListResources()
	owners := make(map[string]construct.ResourceId)
	for _, r := range resources {
		var logicalId string
		switch r := r.(type) {
		case Parameter:
			logicalId = r.ParameterName()
		case CfnResource:
			logicalId = LogicalId(r.Id())
		default:
			continue
		}
		if owner, ok := owners[logicalId]; ok {
			errs = multierr.Append(errs, fmt.Errorf("duplicate logical id %s for %s and %s", logicalId, owner, r.Id()))
			continue
		}
		owners[logicalId] = r.Id()
		c.ids[r.Id()] = logicalId
	}

	// compiled in creation order so errors read dependencies first
	walkErr := construct.WalkGraph(dag, func(_ construct.ResourceId, r construct.Resource, _ error) error {
		switch r := r.(type) {
		case Parameter:
			t.Parameters[r.ParameterName()] = r.CfnParameter()

		case Output:
			out, err := c.compileOutput(r)
			if err != nil {
				errs = multierr.Append(errs, err)
				return nil
			}
			if _, ok := t.Outputs[r.OutputName()]; ok {
				errs = multierr.Append(errs, fmt.Errorf("duplicate output %s", r.OutputName()))
				return nil
			}
			t.Outputs[r.OutputName()] = out

		case CfnResource:
			logicalId, ok := c.ids[r.Id()]
			if !ok {
				// already reported as a duplicate
				return nil
			}
			res, err := c.compileResource(r)
			if err != nil {
				errs = multierr.Append(errs, err)
				return nil
			}
			t.Resources[logicalId] = res

		default:
			zap.S().Debugf("skipping %s: not renderable in a template", r.Id())
		}
		return nil
	})
	errs = multierr.Append(errs, walkErr)
	if len(t.Resources) == 0 && errs == nil {
		errs = multierr.Append(errs, fmt.Errorf("template has no resources"))
	}
	if errs != nil {
		return nil, errs
	}
	zap.S().Debugf("compiled %d resources, %d parameters and %d outputs",
		len(t.Resources), len(t.Parameters), len(t.Outputs))
	return t, nil
}

func (c *Compiler) compileResource(r CfnResource) (Resource, error) {
	props, err := r.CfnProperties()
	if err != nil {
		return Resource{}, fmt.Errorf("could not get properties of %s: %w", r.Id(), err)
	}
	rv := &resolver{compiler: c, referenced: make(map[string]struct{})}
	resolved, err := rv.resolve(props)
	if err != nil {
		return Resource{}, fmt.Errorf("%s: %w", r.Id(), err)
	}
	res := Resource{Type: r.CfnType()}
	if m, ok := resolved.(map[string]any); ok && len(m) > 0 {
		res.Properties = m
	}
	if dp, ok := r.(DeletionPolicyResource); ok {
		res.DeletionPolicy = dp.CfnDeletionPolicy()
		res.UpdateReplacePolicy = dp.CfnDeletionPolicy()
	}
	res.DependsOn = c.dependsOn(r, rv.referenced)
	return res, nil
}

// dependsOn lists the dependencies of r that its properties do not already imply through a reference.
func (c *Compiler) dependsOn(r CfnResource, referenced map[string]struct{}) []string {
	var deps []string
	for _, dep := range c.graph.DirectDownstreamDependencies(r) {
		if _, ok := dep.(CfnResource); !ok {
			continue
		}
		if _, ok := dep.(Parameter); ok {
			continue
		}
		id, ok := c.ids[dep.Id()]
		if !ok {
			continue
		}
		if _, ok := referenced[id]; ok {
			continue
		}
		deps = append(deps, id)
	}
	sort.Strings(deps)
	return deps
}

func (c *Compiler) compileOutput(o Output) (map[string]any, error) {
	rv := &resolver{compiler: c, referenced: make(map[string]struct{})}
	resolved, err := rv.resolve(o.CfnOutput())
	if err != nil {
		return nil, fmt.Errorf("output %s: %w", o.OutputName(), err)
	}
	return resolved.(map[string]any), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
