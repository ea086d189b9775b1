package stacks

import (
	"context"
	"fmt"

	"github.com/flab-reels/authcdk/pkg/construct"
	"github.com/flab-reels/authcdk/pkg/provider/aws/resources"
)

const ClusterArnOutput = "ClusterARN"

// ServiceStack declares the Fargate service running image behind a network load balancer. The image's tag is a
// parameter of this stack, supplied by the pipeline when it deploys the template.
func ServiceStack(ctx context.Context, app *App, image resources.TagParameterContainerImage) (*Stack, error) {
	cfg := app.Config.Service
	stack := newStack(cfg.StackName, fmt.Sprintf("%s service on ECS Fargate", app.Config.AppName))
	dag := stack.Graph

	network, err := resources.CreateNetwork(dag, resources.NetworkCreateParams{
		Name:        cfg.Network.VpcName,
		CidrBlock:   cfg.Network.CidrBlock,
		MaxAzs:      cfg.Network.MaxAzs,
		NatGateways: cfg.Network.NatGatewayCount(),
	})
	if err != nil {
		return nil, err
	}

	// the same role both starts the task and is assumed by the running container
	role := &resources.IamRole{}
	err = role.Create(dag, resources.IamRoleCreateParams{
		Name:      cfg.RoleName,
		RoleName:  cfg.RoleName,
		AssumedBy: "ecs-tasks.amazonaws.com",
	})
	if err != nil {
		return nil, err
	}

	cluster := &resources.EcsCluster{}
	if err := cluster.Create(dag, resources.EcsClusterCreateParams{Name: cfg.ClusterName, ClusterName: cfg.ClusterName}); err != nil {
		return nil, err
	}

	taskDef := &resources.EcsTaskDefinition{}
	err = taskDef.Create(dag, resources.EcsTaskDefinitionCreateParams{
		Name:          cfg.TaskFamily,
		Family:        cfg.TaskFamily,
		Cpu:           cfg.Cpu,
		Memory:        cfg.Memory,
		ExecutionRole: role,
		TaskRole:      role,
	})
	if err != nil {
		return nil, err
	}

	tag, err := image.Bind(dag)
	if err != nil {
		return nil, err
	}
	image.GrantPull(role)

	container := &resources.ContainerDefinition{
		Name:        cfg.ContainerName,
		Image:       image.ImageUri(tag),
		Essential:   true,
		Environment: make(map[string]any, len(cfg.Environment)),
		Secrets:     make(map[string]resources.SecretValue, len(cfg.Secrets)),
	}
	for name, value := range cfg.Environment {
		container.Environment[name] = value
	}
	for name, ref := range cfg.Secrets {
		container.Secrets[name] = resources.SecretsManagerValue(ref)
	}
	if cfg.LogRetentionDays > 0 {
		logGroup := &resources.LogGroup{}
		err = logGroup.Create(dag, resources.CloudwatchLogGroupCreateParams{
			Name:            cfg.ContainerName + "-logs",
			RetentionInDays: cfg.LogRetentionDays,
		})
		if err != nil {
			return nil, err
		}
		container.LogGroup = logGroup
	}
	container.AddPortMapping(cfg.ContainerPort, "tcp")
	if err := taskDef.AddContainer(container); err != nil {
		return nil, err
	}

	nlb := &resources.LoadBalancer{}
	err = nlb.Create(dag, resources.LoadBalancerCreateParams{
		Name:             cfg.LoadBalancerName,
		LoadBalancerName: cfg.LoadBalancerName,
		Type:             resources.NetworkLoadBalancer,
		InternetFacing:   cfg.InternetFacing,
		Network:          network,
	})
	if err != nil {
		return nil, err
	}
	listener := &resources.Listener{}
	err = listener.Create(dag, resources.ListenerCreateParams{
		Name:         cfg.ListenerName,
		LoadBalancer: nlb,
		Port:         cfg.ListenerPort,
	})
	if err != nil {
		return nil, err
	}

	sg := &resources.SecurityGroup{}
	err = sg.Create(dag, resources.SecurityGroupCreateParams{
		Name:             cfg.SecurityGroupName,
		GroupName:        cfg.SecurityGroupName,
		Description:      fmt.Sprintf("%s service tasks", app.Config.AppName),
		Vpc:              network.Vpc,
		AllowAllOutbound: true,
	})
	if err != nil {
		return nil, err
	}
	for _, port := range cfg.IngressPorts {
		err := sg.AddIngressRule(dag, resources.AnyIpv4(), resources.Tcp(port), fmt.Sprintf("allow %d from anywhere", port))
		if err != nil {
			return nil, err
		}
	}

	svc := &resources.EcsService{}
	err = svc.Create(dag, resources.EcsServiceCreateParams{
		Name:           cfg.ServiceName,
		ServiceName:    cfg.ServiceName,
		Cluster:        cluster,
		TaskDefinition: taskDef,
		DesiredCount:   cfg.DesiredCount,
		AssignPublicIp: cfg.AssignPublicIp,
		Network:        network,
		SecurityGroups: []*resources.SecurityGroup{sg},
	})
	if err != nil {
		return nil, err
	}

	tg := &resources.TargetGroup{}
	err = tg.Create(dag, resources.TargetGroupCreateParams{
		Name:                cfg.TargetGroupName,
		TargetGroupName:     cfg.TargetGroupName,
		Vpc:                 network.Vpc,
		Port:                cfg.ContainerPort,
		Protocol:            nlb.ListenerProtocol(),
		DeregistrationDelay: cfg.DeregistrationDelaySeconds,
		HealthCheck: resources.TargetGroupHealthCheck{
			Path:               cfg.HealthCheck.Path,
			IntervalSeconds:    cfg.HealthCheck.IntervalSeconds,
			HealthyThreshold:   cfg.HealthCheck.HealthyThreshold,
			UnhealthyThreshold: cfg.HealthCheck.UnhealthyThreshold,
		},
	})
	if err != nil {
		return nil, err
	}
	if err := listener.AddTargets(tg); err != nil {
		return nil, err
	}
	svc.AttachToTargetGroup(tg, listener, container.Name, cfg.ContainerPort)

	if cfg.Scaling.MaxCapacity > 0 {
		target := &resources.ScalableTarget{}
		err = target.Create(dag, resources.ScalableTargetCreateParams{
			Service:     svc,
			MinCapacity: cfg.Scaling.MinCapacity,
			MaxCapacity: cfg.Scaling.MaxCapacity,
		})
		if err != nil {
			return nil, err
		}
		if cfg.Scaling.TargetCpuUtilization > 0 {
			if _, err := target.ScaleOnCpuUtilization(dag, cfg.Scaling.TargetCpuUtilization); err != nil {
				return nil, err
			}
		}
	}

	output := &resources.StackOutput{}
	err = output.Create(dag, resources.StackOutputCreateParams{
		Name:  ClusterArnOutput,
		Value: construct.ArnOf(cluster),
	})
	if err != nil {
		return nil, err
	}

	return stack, stack.linkResources(ctx)
}
