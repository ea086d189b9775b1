// Package aws holds the naming rules of the AWS services authcdk declares. Each sanitizer maps any input to
// a name the service accepts, truncated to the service's length limit.
package aws

import "github.com/flab-reels/authcdk/pkg/sanitization"

// CI/CD
var (
	EcrRepositorySanitizer = sanitization.NewSanitizer(256,
		sanitization.Strip(`[^a-z0-9_/.\-]`).Lower(),
		sanitization.Replace(`[/._\-]{2,}`, "-"),
		sanitization.Strip(`^[^a-z0-9]+`),
		sanitization.Strip(`[^a-z0-9]+$`),
	)

	CodeBuildProjectSanitizer = sanitization.NewSanitizer(255,
		sanitization.Replace(`[^A-Za-z0-9\-_]+`, "-"),
		sanitization.Strip(`^[^A-Za-z0-9]+`),
	)

	// CodePipelineSanitizer applies to pipeline, stage and action names.
	CodePipelineSanitizer = sanitization.NewSanitizer(100, sanitization.Replace(`[^A-Za-z0-9.@\-_]+`, "_"))

	PipelineArtifactSanitizer  = sanitization.NewSanitizer(100, sanitization.Replace(`[^A-Za-z0-9\-_]+`, "_"))
	PipelineNamespaceSanitizer = sanitization.NewSanitizer(100, sanitization.Replace(`[^A-Za-z0-9@\-_]+`, "_"))

	StackNameSanitizer = sanitization.NewSanitizer(128,
		sanitization.Replace(`[^a-zA-Z0-9-]+`, "-"),
		sanitization.Strip(`^[^a-zA-Z]+`),
	)
)

// Compute and networking
var (
	EcsTaskDefinitionSanitizer = sanitization.NewSanitizer(255, sanitization.Strip(`[^\w-]+`))
	EcsClusterSanitizer        = EcsTaskDefinitionSanitizer
	EcsServiceSanitizer        = EcsTaskDefinitionSanitizer
	EcsContainerSanitizer      = EcsTaskDefinitionSanitizer

	LoadBalancerSanitizer = sanitization.NewSanitizer(32,
		sanitization.Replace(`[^a-zA-Z\d-]`, "-"),
		sanitization.Strip(`^internal-`),
		sanitization.Strip(`^-+`),
		sanitization.Strip(`-+$`),
	)
	TargetGroupSanitizer = sanitization.NewSanitizer(32,
		sanitization.Replace(`[^a-zA-Z\d-]`, "-"),
		sanitization.Strip(`^-+`),
		sanitization.Strip(`-+$`),
	)

	// SecurityGroupSanitizer also drops the reserved `sg-` prefix.
	SecurityGroupSanitizer = sanitization.NewSanitizer(255,
		sanitization.Replace(`[^a-zA-Z\d ._\-:/()#,@\[\]+=&;{}!]`, "_"),
		sanitization.Strip(`^sg-`),
	)
)

// Data
var (
	// RdsInstanceSanitizer yields a lower case identifier starting with a letter, without repeated or
	// trailing hyphens.
	RdsInstanceSanitizer = sanitization.NewSanitizer(63,
		sanitization.Replace(`[^\da-z-]`, "-").Lower(),
		sanitization.Strip(`^[^a-z]+`),
		sanitization.Replace(`--+`, "-"),
		sanitization.Strip(`-+$`),
	)
	RdsSubnetGroupSanitizer = sanitization.NewSanitizer(255, sanitization.Strip(`[^a-z0-9_.-]+`).Lower())
	RdsDBNameSanitizer      = sanitization.NewSanitizer(64,
		sanitization.Strip(`[^a-zA-Z0-9]+`),
		sanitization.Strip(`^[^a-zA-Z]+`),
	)

	S3BucketSanitizer = sanitization.NewSanitizer(63, sanitization.Replace(`[^a-z0-9.-]`, "-").Lower())
	// S3ObjectKeySanitizer turns OS paths into relative keys.
	S3ObjectKeySanitizer = sanitization.NewSanitizer(1024,
		sanitization.Replace(`\\`, "/"),
		sanitization.Strip(`^/+`),
	)
)

// Identity, secrets and logs
var (
	IamRoleSanitizer   = sanitization.NewSanitizer(64, sanitization.Replace(`[^\w+=,.@-]`, "_"))
	IamPolicySanitizer = sanitization.NewSanitizer(128, sanitization.Replace(`[^\w+=,.@-]`, "_"))

	SecretSanitizer = sanitization.NewSanitizer(512, sanitization.Replace(`[^\w/+=.@-]`, "-"))

	CloudwatchLogGroupSanitizer = sanitization.NewSanitizer(512, sanitization.Replace(`[^-._/#A-Za-z\d]`, "_"))
)
