package resources

import (
	"fmt"

	"github.com/flab-reels/authcdk/pkg/construct"
)

const (
	SCALABLE_TARGET_TYPE = "scalable_target"
	SCALING_POLICY_TYPE  = "scaling_policy"

	CpuUtilizationMetric    = "ECSServiceAverageCPUUtilization"
	MemoryUtilizationMetric = "ECSServiceAverageMemoryUtilization"
)

type (
	// ScalableTarget makes the desired count of Service adjustable between MinCapacity and MaxCapacity.
	ScalableTarget struct {
		Name        string
		Service     *EcsService
		MinCapacity int
		MaxCapacity int
	}

	ScalableTargetCreateParams struct {
		Service     *EcsService
		MinCapacity int
		MaxCapacity int
	}

	// ScalingPolicy keeps Metric of the target near TargetValue.
	ScalingPolicy struct {
		Name             string
		Target           *ScalableTarget
		Metric           string
		TargetValue      float64
		ScaleInCooldown  int
		ScaleOutCooldown int
	}

	ScalingPolicyCreateParams struct {
		Name        string
		Target      *ScalableTarget
		Metric      string
		TargetValue float64
	}
)

func (target *ScalableTarget) Create(dag *construct.Graph, params ScalableTargetCreateParams) error {
	if params.Service == nil {
		return fmt.Errorf("scalable target has no service")
	}
	target.Name = params.Service.Name + "-scaling-target"
	if params.MinCapacity < 0 || params.MaxCapacity < 1 || params.MinCapacity > params.MaxCapacity {
		return fmt.Errorf("scalable target %s: invalid capacity %d-%d", target.Name, params.MinCapacity, params.MaxCapacity)
	}
	target.Service = params.Service
	target.MinCapacity = params.MinCapacity
	target.MaxCapacity = params.MaxCapacity
	return ensureUnique(dag, target)
}

func (target *ScalableTarget) Id() construct.ResourceId {
	return construct.ResourceId{
		Provider: AWS_PROVIDER,
		Type:     SCALABLE_TARGET_TYPE,
		Name:     target.Name,
	}
}

// ScaleOnCpuUtilization adds a target tracking policy on the service's average cpu.
func (target *ScalableTarget) ScaleOnCpuUtilization(dag *construct.Graph, utilization float64) (*ScalingPolicy, error) {
	policy := &ScalingPolicy{}
	err := policy.Create(dag, ScalingPolicyCreateParams{
		Name:        target.Service.Name + "-cpu-scaling",
		Target:      target,
		Metric:      CpuUtilizationMetric,
		TargetValue: utilization,
	})
	return policy, err
}

func (target *ScalableTarget) CfnType() string {
	return "AWS::ApplicationAutoScaling::ScalableTarget"
}

func (target *ScalableTarget) CfnProperties() (map[string]any, error) {
	svc := target.Service
	return map[string]any{
		"MinCapacity":       target.MinCapacity,
		"MaxCapacity":       target.MaxCapacity,
		"ServiceNamespace":  "ecs",
		"ScalableDimension": "ecs:service:DesiredCount",
		"ResourceId": construct.Join{
			Delimiter: "/",
			Values: []any{
				"service",
				construct.RefOf(svc.Cluster),
				construct.AttrOf(svc, SERVICE_NAME_IAC_VALUE),
			},
		},
		"RoleARN": construct.Sub{
			Template: "arn:${AWS::Partition}:iam::${AWS::AccountId}:role/aws-service-role/ecs.application-autoscaling.amazonaws.com/AWSServiceRoleForApplicationAutoScaling_ECSService",
		},
	}, nil
}

func (policy *ScalingPolicy) Create(dag *construct.Graph, params ScalingPolicyCreateParams) error {
	policy.Name = params.Name
	if params.Target == nil {
		return fmt.Errorf("scaling policy %s has no target", policy.Name)
	}
	if params.TargetValue <= 0 || params.TargetValue > 100 {
		return fmt.Errorf("scaling policy %s: target utilization %v must be in (0, 100]", policy.Name, params.TargetValue)
	}
	policy.Target = params.Target
	policy.Metric = params.Metric
	policy.TargetValue = params.TargetValue
	policy.ScaleInCooldown = 300
	policy.ScaleOutCooldown = 300
	return ensureUnique(dag, policy)
}

func (policy *ScalingPolicy) Id() construct.ResourceId {
	return construct.ResourceId{
		Provider: AWS_PROVIDER,
		Type:     SCALING_POLICY_TYPE,
		Name:     policy.Name,
	}
}

func (policy *ScalingPolicy) CfnType() string {
	return "AWS::ApplicationAutoScaling::ScalingPolicy"
}

func (policy *ScalingPolicy) CfnProperties() (map[string]any, error) {
	return map[string]any{
		"PolicyName":      policy.Name,
		"PolicyType":      "TargetTrackingScaling",
		"ScalingTargetId": construct.RefOf(policy.Target),
		"TargetTrackingScalingPolicyConfiguration": map[string]any{
			"TargetValue":      policy.TargetValue,
			"ScaleInCooldown":  policy.ScaleInCooldown,
			"ScaleOutCooldown": policy.ScaleOutCooldown,
			"PredefinedMetricSpecification": map[string]any{
				"PredefinedMetricType": policy.Metric,
			},
		},
	}, nil
}
