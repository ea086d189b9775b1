package resources

import (
	"fmt"
	"strings"

	"github.com/flab-reels/authcdk/pkg/construct"
)

// SecretValue references a secret stored in Secrets Manager outside of any stack. It is never read here: the
// provisioning engine resolves it at deploy time.
type SecretValue struct {
	SecretName string
	// JsonKey selects one key of a JSON secret. Empty means the whole secret string.
	JsonKey string
}

// SecretsManagerValue parses `name` or `name:json-key`.
func SecretsManagerValue(ref string) SecretValue {
	name, key, _ := strings.Cut(ref, ":")
	return SecretValue{SecretName: name, JsonKey: key}
}

// DynamicReference is the template dynamic reference the engine resolves at deploy time.
func (s SecretValue) DynamicReference() string {
	return fmt.Sprintf("{{resolve:secretsmanager:%s:SecretString:%s::}}", s.SecretName, s.JsonKey)
}

// CfnValue renders the secret wherever it is used as a property value.
func (s SecretValue) CfnValue() any {
	return s.DynamicReference()
}

// Arn is the partial ARN of the secret. Secrets Manager appends a random suffix to every secret ARN, so policies
// should use [SecretValue.PolicyResource].
func (s SecretValue) Arn() construct.Sub {
	return construct.Sub{
		Template: "arn:${AWS::Partition}:secretsmanager:${AWS::Region}:${AWS::AccountId}:secret:" + s.SecretName,
	}
}

// ValueFrom is the reference an ECS container secret reads the value from.
func (s SecretValue) ValueFrom() construct.Sub {
	arn := s.Arn()
	if s.JsonKey != "" {
		arn.Template += ":" + s.JsonKey + "::"
	}
	return arn
}

func (s SecretValue) PolicyResource() construct.Sub {
	arn := s.Arn()
	arn.Template += "-??????"
	return arn
}

// GrantRead lets role read the secret value.
func (s SecretValue) GrantRead(role *IamRole) {
	role.Grant([]string{"secretsmanager:GetSecretValue", "secretsmanager:DescribeSecret"}, s.PolicyResource())
}
