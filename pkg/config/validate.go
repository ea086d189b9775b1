package config

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/flab-reels/authcdk/pkg/provider/aws/resources"
	"github.com/flab-reels/authcdk/pkg/sanitization"
	awsSanitizer "github.com/flab-reels/authcdk/pkg/sanitization/aws"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// typedRule adapts a typed func to a [validation.Rule].
type typedRule[T any] func(v T) error

func (r typedRule[T]) Validate(value any) error {
	v, ok := value.(T)
	if !ok {
		return fmt.Errorf("unable to convert to types %T => %T", value, v)
	}
	return r(v)
}

// sanitizedRule rejects values the sanitizer would change, suggesting the sanitized form.
func sanitizedRule(s *sanitization.Sanitizer, what string) typedRule[string] {
	return func(v string) error {
		if v == "" {
			return nil
		}
		if clean := s.Apply(v); clean != v {
			return fmt.Errorf("not a valid %s (try %q)", what, clean)
		}
		return nil
	}
}

var (
	stackNameRule = sanitizedRule(awsSanitizer.StackNameSanitizer, "stack name")
	bucketRule    = sanitizedRule(awsSanitizer.S3BucketSanitizer, "bucket name")
	// secretRule checks the secret name of a `name[:key]` reference.
	secretRule = typedRule[string](func(v string) error {
		name, _, _ := strings.Cut(v, ":")
		return sanitizedRule(awsSanitizer.SecretSanitizer, "secret name")(name)
	})

	portRule          = []validation.Rule{validation.Required, validation.Min(1), validation.Max(65535)}
	cidrRule          = typedRule[string](func(v string) error { _, err := netip.ParsePrefix(v); return err })
	engineVersionRule = typedRule[string](func(v string) error { _, err := resources.ParseEngineVersion(v); return err })
	buildImages       = []any{"AMAZON_LINUX_2", "AMAZON_LINUX_2_2", "AMAZON_LINUX_2_3", "AMAZON_LINUX_2_4", "AMAZON_LINUX_2_5", "STANDARD_5_0", "STANDARD_6_0", "STANDARD_7_0"}
	computeTypes      = []any{"BUILD_GENERAL1_SMALL", "BUILD_GENERAL1_MEDIUM", "BUILD_GENERAL1_LARGE", "BUILD_GENERAL1_2XLARGE"}
)

func (a Application) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.AppName, validation.Required),
		validation.Field(&a.OutDir, validation.Required),
		validation.Field(&a.TemplateFormat, validation.Required, validation.In("json", "yaml")),
		validation.Field(&a.Pipeline),
		validation.Field(&a.Service),
		validation.Field(&a.Database),
		validation.Field(&a.Publish),
	)
}

func (p Pipeline) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.StackName, validation.Required, stackNameRule),
		validation.Field(&p.Name, validation.Required),
		validation.Field(&p.RepositoryName, validation.Required),
		validation.Field(&p.MaxImageCount, validation.Min(0)),
		validation.Field(&p.GitHubOwner, validation.Required),
		validation.Field(&p.Branch, validation.Required),
		validation.Field(&p.OAuthTokenSecret, validation.Required, secretRule),
		validation.Field(&p.AppSource),
		validation.Field(&p.InfraSource),
		validation.Field(&p.ImageBuild),
		validation.Field(&p.SynthBuild),
		validation.Field(&p.DeployActionName, validation.Required),
	)
}

func (s GitHubSource) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.ActionName, validation.Required),
		validation.Field(&s.Repo, validation.Required),
	)
}

func (b BuildProject) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.ProjectName, validation.Required),
		validation.Field(&b.ActionName, validation.Required),
		validation.Field(&b.Image, validation.Required, validation.In(buildImages...)),
		validation.Field(&b.ComputeType, validation.Required, validation.In(computeTypes...)),
	)
}

func (n Network) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.VpcName, validation.Required),
		validation.Field(&n.CidrBlock, validation.Required, cidrRule),
		validation.Field(&n.MaxAzs, validation.Required, validation.Min(1), validation.Max(6)),
		validation.Field(&n.NatGateways, validation.Min(0), validation.Max(n.MaxAzs)),
	)
}

func (s Service) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.StackName, validation.Required, stackNameRule),
		validation.Field(&s.Network),
		validation.Field(&s.ClusterName, validation.Required),
		validation.Field(&s.RoleName, validation.Required),
		validation.Field(&s.TaskFamily, validation.Required),
		validation.Field(&s.Cpu, validation.Required, validation.In(256, 512, 1024, 2048, 4096)),
		validation.Field(&s.Memory, validation.Required, typedRule[int](func(mem int) error {
			if _, ok := resources.FargateMemorySizes[s.Cpu]; !ok {
				return nil // reported on cpu
			}
			return resources.ValidateFargateSize(s.Cpu, mem)
		})),
		validation.Field(&s.ContainerName, validation.Required),
		validation.Field(&s.ContainerPort, portRule...),
		validation.Field(&s.LogRetentionDays, validation.Min(0)),
		validation.Field(&s.LoadBalancerName, validation.Required),
		validation.Field(&s.ListenerName, validation.Required),
		validation.Field(&s.ListenerPort, portRule...),
		validation.Field(&s.SecurityGroupName, validation.Required),
		validation.Field(&s.IngressPorts, validation.Each(validation.Min(1), validation.Max(65535))),
		validation.Field(&s.ServiceName, validation.Required),
		validation.Field(&s.DesiredCount, validation.Min(0)),
		validation.Field(&s.TargetGroupName, validation.Required),
		validation.Field(&s.DeregistrationDelaySeconds, validation.Min(0), validation.Max(3600)),
		validation.Field(&s.HealthCheck),
		validation.Field(&s.Scaling),
	)
}

func (h HealthCheck) Validate() error {
	return validation.ValidateStruct(&h,
		validation.Field(&h.IntervalSeconds, validation.Min(5), validation.Max(300)),
		validation.Field(&h.HealthyThreshold, validation.Min(2), validation.Max(10)),
		validation.Field(&h.UnhealthyThreshold, validation.Min(2), validation.Max(10)),
	)
}

func (s Scaling) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.MinCapacity, validation.Min(0)),
		validation.Field(&s.MaxCapacity, validation.Min(s.MinCapacity)),
		validation.Field(&s.TargetCpuUtilization, validation.Min(1.0), validation.Max(100.0)),
	)
}

func (d Database) Validate() error {
	if !d.Enabled {
		return nil
	}
	return validation.ValidateStruct(&d,
		validation.Field(&d.StackName, validation.Required, stackNameRule),
		validation.Field(&d.Network),
		validation.Field(&d.SecurityGroupName, validation.Required),
		validation.Field(&d.InstanceIdentifier, validation.Required),
		validation.Field(&d.DatabaseName, validation.Required),
		validation.Field(&d.EngineVersion, validation.Required, engineVersionRule),
		validation.Field(&d.InstanceClass, validation.Required),
		validation.Field(&d.AllocatedStorage, validation.Min(20), validation.Max(65536)),
		validation.Field(&d.Username, validation.Required),
		validation.Field(&d.PasswordSecret, validation.Required, secretRule),
		validation.Field(&d.EndpointOutputName, validation.Required),
	)
}

func (p Publish) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Bucket, bucketRule),
		validation.Field(&p.Pattern, validation.Required),
		validation.Field(&p.Concurrency, validation.Min(1)),
	)
}
