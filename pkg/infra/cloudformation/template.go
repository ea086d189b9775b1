package cloudformation

import (
	"encoding/json"
	"fmt"

	"github.com/flab-reels/authcdk/pkg/construct"
	"sigs.k8s.io/yaml"
)

const TemplateFormatVersion = "2010-09-09"

type (
	// Template is a synthesized stack, ready to be handed to the provisioning engine.
	Template struct {
		AWSTemplateFormatVersion string                    `json:"AWSTemplateFormatVersion"`
		Description              string                    `json:"Description,omitempty"`
		Parameters               map[string]map[string]any `json:"Parameters,omitempty"`
		Resources                map[string]Resource       `json:"Resources"`
		Outputs                  map[string]map[string]any `json:"Outputs,omitempty"`
	}

	Resource struct {
		Type                string         `json:"Type"`
		Properties          map[string]any `json:"Properties,omitempty"`
		DependsOn           []string       `json:"DependsOn,omitempty"`
		DeletionPolicy      string         `json:"DeletionPolicy,omitempty"`
		UpdateReplacePolicy string         `json:"UpdateReplacePolicy,omitempty"`
	}

	// Format is the encoding a template is written in.
	Format string
)

const (
	JSON Format = "json"
	YAML Format = "yaml"
)

type (
	// CfnResource is a construct that is declared in the Resources section of a template.
	CfnResource interface {
		construct.Resource
		CfnType() string
		CfnProperties() (map[string]any, error)
	}

	// DeletionPolicyResource overrides what happens to the physical resource when it leaves the stack.
	DeletionPolicyResource interface {
		CfnDeletionPolicy() string
	}

	// Parameter is a construct declared in the Parameters section. IaCValues pointing to it resolve to a
	// `Ref` of its name.
	Parameter interface {
		construct.Resource
		ParameterName() string
		CfnParameter() map[string]any
	}

	// Output is a construct declared in the Outputs section.
	Output interface {
		construct.Resource
		OutputName() string
		CfnOutput() map[string]any
	}

	// ValueRenderer is a property value that knows its own template form, such as a dynamic reference.
	ValueRenderer interface {
		CfnValue() any
	}
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case JSON, YAML:
		return f, nil
	case "yml":
		return YAML, nil
	}
	return "", fmt.Errorf("unsupported template format %q (must be json or yaml)", s)
}

// Extension is the file extension for templates in f, without the dot.
func (f Format) Extension() string {
	return string(f)
}

// TemplateFileName is the name the template of stackName is written under in an assembly.
func TemplateFileName(stackName string, f Format) string {
	return stackName + ".template." + f.Extension()
}

// Marshal encodes the template. Map keys are always sorted, so equal templates encode identically.
func (t *Template) Marshal(format Format) ([]byte, error) {
	content, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, err
	}
	switch format {
	case JSON, "":
		return append(content, '\n'), nil
	case YAML:
		return yaml.JSONToYAML(content)
	}
	return nil, fmt.Errorf("unsupported template format %q", format)
}

// ParseTemplate reads a template in either format.
func ParseTemplate(content []byte) (*Template, error) {
	t := &Template{}
	if err := yaml.Unmarshal(content, t); err != nil {
		return nil, fmt.Errorf("could not parse template: %w", err)
	}
	return t, nil
}

// LogicalIds returns the logical ids of the template's resources, sorted.
func (t *Template) LogicalIds() []string {
	return sortedKeys(t.Resources)
}
