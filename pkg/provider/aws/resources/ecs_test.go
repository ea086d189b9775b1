package resources

import (
	"testing"

	"github.com/flab-reels/authcdk/pkg/construct"
	"github.com/flab-reels/authcdk/pkg/construct/constructtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ValidateFargateSize(t *testing.T) {
	tests := []struct {
		name    string
		cpu     int
		memory  int
		wantErr string
	}{
		{name: "smallest", cpu: 256, memory: 512},
		{name: "one vcpu", cpu: 1024, memory: 2048},
		{name: "four vcpu max", cpu: 4096, memory: 30720},
		{name: "memory between steps", cpu: 512, memory: 1536, wantErr: "memory size"},
		{name: "memory too small", cpu: 2048, memory: 2048, wantErr: "memory size"},
		{name: "unknown cpu", cpu: 300, memory: 512, wantErr: "cpu size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFargateSize(tt.cpu, tt.memory)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

type testService struct {
	dag      *construct.Graph
	network  *Network
	cluster  *EcsCluster
	taskDef  *EcsTaskDefinition
	execRole *IamRole
	tag      *StackParameter
	image    TagParameterContainerImage
}

func newTestService(t *testing.T) *testService {
	require := require.New(t)
	ts := &testService{dag: construct.NewGraph()}

	var err error
	ts.network, err = CreateNetwork(ts.dag, NetworkCreateParams{Name: "Vpc", CidrBlock: "10.0.0.0/16", MaxAzs: 2, NatGateways: 1})
	require.NoError(err)

	ts.cluster = &EcsCluster{}
	require.NoError(ts.cluster.Create(ts.dag, EcsClusterCreateParams{Name: "EcsCluster"}))

	ts.execRole = &IamRole{}
	require.NoError(ts.execRole.Create(ts.dag, IamRoleCreateParams{Name: "TaskExecutionRole", AssumedBy: "ecs-tasks.amazonaws.com"}))
	ts.taskDef = &EcsTaskDefinition{}
	require.NoError(ts.taskDef.Create(ts.dag, EcsTaskDefinitionCreateParams{
		Name:          "TaskDef",
		Family:        "auth-api",
		Cpu:           1024,
		Memory:        2048,
		ExecutionRole: ts.execRole,
	}))

	ts.image = NewTagParameterContainerImage(&EcrRepository{Name: "auth-ecr-repository"})
	ts.tag, err = ts.image.Bind(ts.dag)
	require.NoError(err)
	return ts
}

func Test_TaskDefinition_AddContainer(t *testing.T) {
	assert := assert.New(t)
	ts := newTestService(t)

	logs := &LogGroup{}
	if !assert.NoError(logs.Create(ts.dag, CloudwatchLogGroupCreateParams{Name: "auth-logs", RetentionInDays: 10})) {
		return
	}
	container := &ContainerDefinition{
		Name:      "auth.api",
		Image:     ts.image.ImageUri(ts.tag),
		Essential: true,
		Environment: map[string]any{
			"SPRING_PROFILES_ACTIVE": "prod",
		},
		Secrets: map[string]SecretValue{
			"DB_PASSWORD": SecretsManagerValue("auth-db-pw"),
		},
		LogGroup: logs,
	}
	container.AddPortMapping(8080, "")
	container.AddPortMapping(8080, "tcp")
	if !assert.NoError(ts.taskDef.AddContainer(container)) {
		return
	}
	assert.Error(ts.taskDef.AddContainer(&ContainerDefinition{Name: "auth api", Image: "nginx"}), "duplicate container")
	assert.Error(ts.taskDef.AddContainer(&ContainerDefinition{Name: "sidecar"}), "container without image")

	assert.Equal("authapi", container.Name)
	assert.Equal(14, logs.RetentionInDays)
	assert.Contains(ts.execRole.ManagedPolicies, any(AwsManagedPolicyArn("service-role/AmazonECSTaskExecutionRolePolicy")))
	assert.Contains(ts.execRole.InlinePolicy.Statement, StatementEntry{
		Effect:   "Allow",
		Action:   []string{"secretsmanager:GetSecretValue", "secretsmanager:DescribeSecret"},
		Resource: []any{SecretsManagerValue("auth-db-pw").PolicyResource()},
	})

	props, err := ts.taskDef.CfnProperties()
	if !assert.NoError(err) {
		return
	}
	assert.Equal("1024", props["Cpu"])
	assert.Equal("2048", props["Memory"])
	assert.Equal(NETWORK_MODE_AWSVPC, props["NetworkMode"])
	rendered := props["ContainerDefinitions"].([]any)[0].(map[string]any)
	assert.Equal([]any{map[string]any{"ContainerPort": 8080, "HostPort": 8080, "Protocol": "tcp"}}, rendered["PortMappings"])
	assert.Equal([]any{map[string]any{
		"Name":      "DB_PASSWORD",
		"ValueFrom": SecretsManagerValue("auth-db-pw").ValueFrom(),
	}}, rendered["Secrets"])
	assert.Equal(construct.Sub{
		Template:  "${AWS::AccountId}.dkr.ecr.${AWS::Region}.${AWS::URLSuffix}/auth-ecr-repository:${Tag}",
		Variables: map[string]any{"Tag": construct.RefOf(ts.tag)},
	}, rendered["Image"])

	constructtest.AddAllDependencies(t, ts.dag)
	constructtest.ResourcesExpectation{
		Deps: []constructtest.StringDep{
			{Source: "aws:ecs_task_definition:TaskDef", Target: "aws:iam_role:TaskExecutionRole"},
			{Source: "aws:ecs_task_definition:TaskDef", Target: "aws:parameter:AuthEcrRepositoryTag"},
			{Source: "aws:ecs_task_definition:TaskDef", Target: "aws:log_group:auth-logs"},
			{Source: "aws:iam_role:TaskExecutionRole", Target: "aws:log_group:auth-logs"},
		},
		AssertSubset: true,
	}.Assert(t, ts.dag)
}

func Test_EcsService_Create(t *testing.T) {
	tests := []struct {
		name           string
		assignPublicIp bool
		wantSubnets    SubnetType
	}{
		{name: "public ip runs in public subnets", assignPublicIp: true, wantSubnets: PublicSubnet},
		{name: "private tasks run behind nat", wantSubnets: PrivateSubnet},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			ts := newTestService(t)
			svc := &EcsService{}
			err := svc.Create(ts.dag, EcsServiceCreateParams{
				Name:           "Service",
				Cluster:        ts.cluster,
				TaskDefinition: ts.taskDef,
				DesiredCount:   2,
				AssignPublicIp: tt.assignPublicIp,
				Network:        ts.network,
			})
			if !assert.NoError(err) {
				return
			}
			assert.Equal(ts.network.Subnets(tt.wantSubnets), svc.Subnets)

			props, err := svc.CfnProperties()
			if !assert.NoError(err) {
				return
			}
			awsvpc := props["NetworkConfiguration"].(map[string]any)["AwsvpcConfiguration"].(map[string]any)
			if tt.assignPublicIp {
				assert.Equal("ENABLED", awsvpc["AssignPublicIp"])
			} else {
				assert.Equal("DISABLED", awsvpc["AssignPublicIp"])
			}
			assert.NotContains(props, "LoadBalancers")
		})
	}
}

func Test_EcsService_LoadBalancing(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ts := newTestService(t)

	svc := &EcsService{}
	require.NoError(svc.Create(ts.dag, EcsServiceCreateParams{
		Name:           "Service",
		Cluster:        ts.cluster,
		TaskDefinition: ts.taskDef,
		DesiredCount:   1,
		AssignPublicIp: true,
		Network:        ts.network,
	}))

	nlb := &LoadBalancer{}
	require.NoError(nlb.Create(ts.dag, LoadBalancerCreateParams{Name: "Nlb", InternetFacing: true, Network: ts.network}))
	listener := &Listener{}
	require.NoError(listener.Create(ts.dag, ListenerCreateParams{Name: "http", LoadBalancer: nlb, Port: 80}))
	tg := &TargetGroup{}
	require.NoError(tg.Create(ts.dag, TargetGroupCreateParams{
		Name:                "auth-tg",
		Vpc:                 ts.network.Vpc,
		Port:                8080,
		DeregistrationDelay: 30,
		HealthCheck:         TargetGroupHealthCheck{Path: "/actuator/health", IntervalSeconds: 30},
	}))
	require.NoError(listener.AddTargets(tg))
	assert.Error(listener.AddTargets(&TargetGroup{Name: "other"}))
	svc.AttachToTargetGroup(tg, listener, "auth-api", 8080)

	target := &ScalableTarget{}
	require.NoError(target.Create(ts.dag, ScalableTargetCreateParams{Service: svc, MinCapacity: 1, MaxCapacity: 4}))
	_, err := target.ScaleOnCpuUtilization(ts.dag, 70)
	require.NoError(err)

	constructtest.AddAllDependencies(t, ts.dag)
	constructtest.ResourcesExpectation{
		Nodes: []string{
			"aws:load_balancer_listener:Nlb:http",
			"aws:scalable_target:Service-scaling-target",
			"aws:scaling_policy:Service-cpu-scaling",
		},
		Deps: []constructtest.StringDep{
			{Source: "aws:ecs_service:Service", Target: "aws:ecs_cluster:EcsCluster"},
			{Source: "aws:ecs_service:Service", Target: "aws:ecs_task_definition:TaskDef"},
			{Source: "aws:ecs_service:Service", Target: "aws:target_group:auth-tg"},
			{Source: "aws:ecs_service:Service", Target: "aws:load_balancer_listener:Nlb:http"},
			{Source: "aws:load_balancer_listener:Nlb:http", Target: "aws:load_balancer:Nlb"},
			{Source: "aws:load_balancer_listener:Nlb:http", Target: "aws:target_group:auth-tg"},
			{Source: "aws:load_balancer:Nlb", Target: "aws:subnet:Vpc:Vpc-public-1"},
			{Source: "aws:scalable_target:Service-scaling-target", Target: "aws:ecs_service:Service"},
			{Source: "aws:scaling_policy:Service-cpu-scaling", Target: "aws:scalable_target:Service-scaling-target"},
		},
		AssertSubset: true,
	}.Assert(t, ts.dag)

	props, err := svc.CfnProperties()
	if !assert.NoError(err) {
		return
	}
	assert.Equal(60, props["HealthCheckGracePeriodSeconds"])
	assert.Equal([]any{map[string]any{
		"TargetGroupArn": construct.RefOf(tg),
		"ContainerName":  "auth-api",
		"ContainerPort":  8080,
	}}, props["LoadBalancers"])

	tgProps, err := tg.CfnProperties()
	if !assert.NoError(err) {
		return
	}
	assert.Equal("HTTP", tgProps["HealthCheckProtocol"])
	assert.Equal("/actuator/health", tgProps["HealthCheckPath"])
	assert.Equal("TCP", tgProps["Protocol"])

	lbProps, err := nlb.CfnProperties()
	if !assert.NoError(err) {
		return
	}
	assert.Equal("internet-facing", lbProps["Scheme"])
	assert.Equal("network", lbProps["Type"])
}

func Test_ScalableTarget_Invalid(t *testing.T) {
	assert := assert.New(t)
	svc := &EcsService{Name: "svc", Cluster: &EcsCluster{Name: "c"}}
	assert.Error((&ScalableTarget{}).Create(construct.NewGraph(), ScalableTargetCreateParams{Service: svc, MinCapacity: 2, MaxCapacity: 1}))
	assert.Error((&ScalableTarget{}).Create(construct.NewGraph(), ScalableTargetCreateParams{MinCapacity: 1, MaxCapacity: 1}))

	dag := construct.NewGraph()
	target := &ScalableTarget{}
	if assert.NoError(target.Create(dag, ScalableTargetCreateParams{Service: svc, MinCapacity: 1, MaxCapacity: 2})) {
		_, err := target.ScaleOnCpuUtilization(dag, 150)
		assert.Error(err)
	}
}
