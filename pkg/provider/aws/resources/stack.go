package resources

import (
	"fmt"

	"github.com/flab-reels/authcdk/pkg/construct"
	"github.com/flab-reels/authcdk/pkg/sanitization"
	"github.com/iancoleman/strcase"
)

const (
	STACK_PARAMETER_TYPE = "parameter"
	STACK_OUTPUT_TYPE    = "output"
)

var logicalIdSanitizer = sanitization.LogicalIdSanitizer

type (
	// StackParameter is a value supplied when the stack is deployed. IaCValues referencing it resolve to a `Ref`
	// of the parameter name.
	StackParameter struct {
		Name        string
		Type        string
		Default     string
		Description string
		NoEcho      bool
	}

	StackParameterCreateParams struct {
		Name        string
		Type        string
		Default     string
		Description string
		NoEcho      bool
	}

	// StackOutput publishes Value once the stack is deployed.
	StackOutput struct {
		Name        string
		Value       any
		Description string
		ExportName  string
	}

	StackOutputCreateParams struct {
		Name        string
		Value       any
		Description string
		ExportName  string
	}

	// TagParameterContainerImage is an image of Repository whose tag is only known at deploy time. The stack
	// building the image passes the tag to the stack running it through a parameter named TagParameterName.
	TagParameterContainerImage struct {
		RepositoryName   string
		TagParameterName string
	}
)

func (p *StackParameter) Create(dag *construct.Graph, params StackParameterCreateParams) error {
	p.Name = logicalIdSanitizer.Apply(params.Name)
	if p.Name == "" {
		return fmt.Errorf("parameter name %q has no alphanumeric characters", params.Name)
	}
	p.Type = params.Type
	if p.Type == "" {
		p.Type = "String"
	}
	p.Default = params.Default
	p.Description = params.Description
	p.NoEcho = params.NoEcho
	return ensureUnique(dag, p)
}

func (p *StackParameter) Id() construct.ResourceId {
	return construct.ResourceId{
		Provider: AWS_PROVIDER,
		Type:     STACK_PARAMETER_TYPE,
		Name:     p.Name,
	}
}

func (p *StackParameter) ParameterName() string {
	return p.Name
}

func (p *StackParameter) CfnParameter() map[string]any {
	param := map[string]any{"Type": p.Type}
	optional(param, "Default", p.Default)
	optional(param, "Description", p.Description)
	optional(param, "NoEcho", p.NoEcho)
	return param
}

func (o *StackOutput) Create(dag *construct.Graph, params StackOutputCreateParams) error {
	o.Name = logicalIdSanitizer.Apply(params.Name)
	if o.Name == "" {
		return fmt.Errorf("output name %q has no alphanumeric characters", params.Name)
	}
	if params.Value == nil {
		return fmt.Errorf("output %s has no value", o.Name)
	}
	o.Value = params.Value
	o.Description = params.Description
	o.ExportName = params.ExportName
	return ensureUnique(dag, o)
}

func (o *StackOutput) Id() construct.ResourceId {
	return construct.ResourceId{
		Provider: AWS_PROVIDER,
		Type:     STACK_OUTPUT_TYPE,
		Name:     o.Name,
	}
}

func (o *StackOutput) OutputName() string {
	return o.Name
}

func (o *StackOutput) CfnOutput() map[string]any {
	out := map[string]any{"Value": o.Value}
	optional(out, "Description", o.Description)
	if o.ExportName != "" {
		out["Export"] = map[string]any{"Name": o.ExportName}
	}
	return out
}

// NewTagParameterContainerImage derives the tag parameter name from the repository, so both the producing and
// consuming stacks agree on it without sharing a graph.
func NewTagParameterContainerImage(repo *EcrRepository) TagParameterContainerImage {
	return TagParameterContainerImage{
		RepositoryName:   repo.Name,
		TagParameterName: logicalIdSanitizer.Apply(strcase.ToCamel(repo.Name) + "Tag"),
	}
}

// Bind declares the tag parameter in the consuming stack's graph.
func (img TagParameterContainerImage) Bind(dag *construct.Graph) (*StackParameter, error) {
	if existing, ok := construct.GetResourceOfType[*StackParameter](dag, construct.ResourceId{
		Provider: AWS_PROVIDER,
		Type:     STACK_PARAMETER_TYPE,
		Name:     img.TagParameterName,
	}); ok {
		return existing, nil
	}
	param := &StackParameter{}
	err := param.Create(dag, StackParameterCreateParams{
		Name:        img.TagParameterName,
		Description: fmt.Sprintf("image tag of %s to deploy", img.RepositoryName),
	})
	return param, err
}

// ImageUri is the full image reference with the deploy-time tag.
func (img TagParameterContainerImage) ImageUri(tag *StackParameter) construct.Sub {
	return construct.Sub{
		Template: "${AWS::AccountId}.dkr.ecr.${AWS::Region}.${AWS::URLSuffix}/" + img.RepositoryName + ":${Tag}",
		Variables: map[string]any{
			"Tag": construct.RefOf(tag),
		},
	}
}

// RepositoryArn is the ARN of the image's repository in the deploying account and region.
func (img TagParameterContainerImage) RepositoryArn() construct.Sub {
	return construct.Sub{
		Template: "arn:${AWS::Partition}:ecr:${AWS::Region}:${AWS::AccountId}:repository/" + img.RepositoryName,
	}
}

// GrantPull lets role pull the image, as a task execution role must to start the container.
func (img TagParameterContainerImage) GrantPull(role *IamRole) {
	role.Grant([]string{"ecr:GetAuthorizationToken"}, "*")
	role.Grant([]string{
		"ecr:BatchCheckLayerAvailability",
		"ecr:GetDownloadUrlForLayer",
		"ecr:BatchGetImage",
	}, img.RepositoryArn())
}
