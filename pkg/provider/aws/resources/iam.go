package resources

import (
	"fmt"
	"reflect"

	"github.com/flab-reels/authcdk/pkg/construct"
	"github.com/flab-reels/authcdk/pkg/sanitization/aws"
)

const (
	IAM_ROLE_TYPE = "iam_role"
	VERSION       = "2012-10-17"
)

var roleSanitizer = aws.IamRoleSanitizer
var policySanitizer = aws.IamPolicySanitizer

type (
	IamRole struct {
		Name string
		// RoleName is the physical role name. When empty, the provisioning engine generates one.
		RoleName            string
		AssumeRolePolicyDoc *PolicyDocument
		ManagedPolicies     []any
		// InlinePolicy collects the grants made to the role, rendered as a single inline policy.
		InlinePolicy *PolicyDocument
	}

	PolicyDocument struct {
		Version   string
		Statement []StatementEntry
	}

	StatementEntry struct {
		Effect string
		Action []string
		// Resource holds ARNs as strings or IaCValues.
		Resource  []any
		Principal *Principal
	}

	Principal struct {
		Service string
		AWS     any
	}

	IamRoleCreateParams struct {
		Name     string
		RoleName string
		// AssumedBy is the service principal allowed to assume the role, eg. ecs-tasks.amazonaws.com
		AssumedBy string
	}
)

func (role *IamRole) Create(dag *construct.Graph, params IamRoleCreateParams) error {
	role.Name = roleSanitizer.Apply(params.Name)
	if params.RoleName != "" {
		role.RoleName = roleSanitizer.Apply(params.RoleName)
	}
	role.AssumeRolePolicyDoc = AssumeRolePolicy(params.AssumedBy)
	return ensureUnique(dag, role)
}

func (role *IamRole) Id() construct.ResourceId {
	return construct.ResourceId{
		Provider: AWS_PROVIDER,
		Type:     IAM_ROLE_TYPE,
		Name:     role.Name,
	}
}

// AssumeRolePolicy returns a trust policy letting service assume a role.
func AssumeRolePolicy(service string) *PolicyDocument {
	return &PolicyDocument{
		Version: VERSION,
		Statement: []StatementEntry{
			{
				Action:    []string{"sts:AssumeRole"},
				Principal: &Principal{Service: service},
				Effect:    "Allow",
			},
		},
	}
}

// AwsManagedPolicyArn returns the ARN of an AWS managed policy, eg. service-role/AmazonECSTaskExecutionRolePolicy.
func AwsManagedPolicyArn(name string) construct.Sub {
	return construct.Sub{Template: "arn:${AWS::Partition}:iam::aws:policy/" + name}
}

// AddManagedPolicy attaches arn unless it is already attached.
func (role *IamRole) AddManagedPolicy(arn any) {
	for _, existing := range role.ManagedPolicies {
		if reflect.DeepEqual(existing, arn) {
			return
		}
	}
	role.ManagedPolicies = append(role.ManagedPolicies, arn)
}

// Grant allows actions on resources. Identical statements are only added once.
func (role *IamRole) Grant(actions []string, resources ...any) {
	if role.InlinePolicy == nil {
		role.InlinePolicy = &PolicyDocument{Version: VERSION}
	}
	role.InlinePolicy.AddStatement(StatementEntry{
		Effect:   "Allow",
		Action:   actions,
		Resource: resources,
	})
}

func (doc *PolicyDocument) AddStatement(stmt StatementEntry) {
	for _, existing := range doc.Statement {
		if reflect.DeepEqual(existing, stmt) {
			return
		}
	}
	doc.Statement = append(doc.Statement, stmt)
}

func (doc *PolicyDocument) ToCfn() map[string]any {
	statements := make([]any, 0, len(doc.Statement))
	for _, stmt := range doc.Statement {
		s := map[string]any{
			"Effect": stmt.Effect,
			"Action": stringOrList(stmt.Action),
		}
		if len(stmt.Resource) == 1 {
			s["Resource"] = stmt.Resource[0]
		} else if len(stmt.Resource) > 1 {
			s["Resource"] = stmt.Resource
		}
		if stmt.Principal != nil {
			p := map[string]any{}
			optional(p, "Service", stmt.Principal.Service)
			if stmt.Principal.AWS != nil {
				p["AWS"] = stmt.Principal.AWS
			}
			s["Principal"] = p
		}
		statements = append(statements, s)
	}
	return map[string]any{
		"Version":   doc.Version,
		"Statement": statements,
	}
}

func stringOrList(values []string) any {
	if len(values) == 1 {
		return values[0]
	}
	return values
}

func (role *IamRole) CfnType() string {
	return "AWS::IAM::Role"
}

func (role *IamRole) CfnProperties() (map[string]any, error) {
	if role.AssumeRolePolicyDoc == nil {
		return nil, fmt.Errorf("role %s has no assume role policy", role.Name)
	}
	props := map[string]any{
		"AssumeRolePolicyDocument": role.AssumeRolePolicyDoc.ToCfn(),
	}
	optional(props, "RoleName", role.RoleName)
	if len(role.ManagedPolicies) > 0 {
		props["ManagedPolicyArns"] = role.ManagedPolicies
	}
	if role.InlinePolicy != nil && len(role.InlinePolicy.Statement) > 0 {
		props["Policies"] = []any{
			map[string]any{
				"PolicyName":     policySanitizer.Apply(role.Name + "DefaultPolicy"),
				"PolicyDocument": role.InlinePolicy.ToCfn(),
			},
		}
	}
	return props, nil
}
