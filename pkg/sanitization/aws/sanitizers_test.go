package aws

import (
	"testing"

	"github.com/flab-reels/authcdk/pkg/sanitization"
	"github.com/stretchr/testify/assert"
)

func TestSanitizers(t *testing.T) {
	tests := []struct {
		name      string
		sanitizer *sanitization.Sanitizer
		input     string
		want      string
	}{
		{name: "ecr keeps valid name", sanitizer: EcrRepositorySanitizer, input: "auth-ecr-repository", want: "auth-ecr-repository"},
		{name: "ecr lower-cases and collapses separators", sanitizer: EcrRepositorySanitizer, input: "-Auth__Repo!.", want: "auth-repo"},
		{name: "codebuild replaces invalid characters", sanitizer: CodeBuildProjectSanitizer, input: "auth codebuild", want: "auth-codebuild"},
		{name: "codebuild must start alphanumeric", sanitizer: CodeBuildProjectSanitizer, input: "_auth-cdk-codebuild", want: "auth-cdk-codebuild"},
		{name: "pipeline action name", sanitizer: CodePipelineSanitizer, input: "CFN Deploy", want: "CFN_Deploy"},
		{name: "load balancer strips internal prefix", sanitizer: LoadBalancerSanitizer, input: "internal-auth-nlb", want: "auth-nlb"},
		{name: "load balancer max length", sanitizer: LoadBalancerSanitizer, input: "a-very-long-load-balancer-name-that-overflows", want: "a-very-long-load-balancer-name-t"},
		{name: "target group trims hyphens", sanitizer: TargetGroupSanitizer, input: "-auth_tg-", want: "auth-tg"},
		{name: "rds identifier", sanitizer: RdsInstanceSanitizer, input: "1Auth--User-", want: "auth-user"},
		{name: "rds db name", sanitizer: RdsDBNameSanitizer, input: "user", want: "user"},
		{name: "rds db name strips punctuation", sanitizer: RdsDBNameSanitizer, input: "9user-db", want: "userdb"},
		{name: "security group reserved prefix", sanitizer: SecurityGroupSanitizer, input: "sg-search", want: "search"},
		{name: "stack name", sanitizer: StackNameSanitizer, input: "1 Ecs Stack", want: "Ecs-Stack"},
		{name: "iam role", sanitizer: IamRoleSanitizer, input: "auth api role", want: "auth_api_role"},
		{name: "s3 object key", sanitizer: S3ObjectKeySanitizer, input: `/cdk.out\manifest.json`, want: "cdk.out/manifest.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			assert.Equal(tt.want, tt.sanitizer.Apply(tt.input))
		})
	}
}
