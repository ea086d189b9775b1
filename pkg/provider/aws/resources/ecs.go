package resources

import (
	"fmt"
	"slices"
	"sort"

	"github.com/flab-reels/authcdk/pkg/construct"
	"github.com/flab-reels/authcdk/pkg/sanitization"
	"github.com/flab-reels/authcdk/pkg/sanitization/aws"
)

const (
	ECS_CLUSTER_TYPE         = "ecs_cluster"
	ECS_TASK_DEFINITION_TYPE = "ecs_task_definition"
	ECS_SERVICE_TYPE         = "ecs_service"

	LAUNCH_TYPE_FARGATE = "FARGATE"
	NETWORK_MODE_AWSVPC = "awsvpc"
)

var (
	clusterSanitizer   = aws.EcsClusterSanitizer
	taskDefSanitizer   = aws.EcsTaskDefinitionSanitizer
	serviceSanitizer   = aws.EcsServiceSanitizer
	containerSanitizer = aws.EcsContainerSanitizer
)

// FargateMemorySizes lists the memory sizes (MiB) Fargate accepts for each cpu size (units).
var FargateMemorySizes = map[int][]int{
	256:  {512, 1024, 2048},
	512:  rangeStep(1024, 4096, 1024),
	1024: rangeStep(2048, 8192, 1024),
	2048: rangeStep(4096, 16384, 1024),
	4096: rangeStep(8192, 30720, 1024),
}

func rangeStep(from, to, step int) []int {
	var out []int
	for v := from; v <= to; v += step {
		out = append(out, v)
	}
	return out
}

// ValidateFargateSize checks that Fargate can run a task with cpu units and memory MiB.
func ValidateFargateSize(cpu, memory int) error {
	allowed, ok := FargateMemorySizes[cpu]
	if !ok {
		return fmt.Errorf("%d is not a valid Fargate cpu size", cpu)
	}
	if !slices.Contains(allowed, memory) {
		return fmt.Errorf("%d MiB is not a valid memory size for %d cpu units (allowed: %v)", memory, cpu, allowed)
	}
	return nil
}

type (
	EcsCluster struct {
		Name        string
		ClusterName string
		// ContainerInsights enables CloudWatch Container Insights metrics.
		ContainerInsights bool
	}

	EcsClusterCreateParams struct {
		Name        string
		ClusterName string
	}

	EcsTaskDefinition struct {
		Name          string
		Family        string
		Cpu           int
		Memory        int
		ExecutionRole *IamRole
		TaskRole      *IamRole
		Containers    []*ContainerDefinition
	}

	EcsTaskDefinitionCreateParams struct {
		Name          string
		Family        string
		Cpu           int
		Memory        int
		ExecutionRole *IamRole
		TaskRole      *IamRole
	}

	ContainerDefinition struct {
		Name string
		// Image is a plain image reference or a construct value such as [TagParameterContainerImage.ImageUri].
		Image        any
		Essential    bool
		PortMappings []PortMapping
		Environment  map[string]any
		Secrets      map[string]SecretValue
		LogGroup     *LogGroup
		StreamPrefix string
	}

	PortMapping struct {
		ContainerPort int
		HostPort      int
		Protocol      string
	}

	EcsService struct {
		Name           string
		ServiceName    string
		Cluster        *EcsCluster
		TaskDefinition *EcsTaskDefinition
		DesiredCount   int
		AssignPublicIp bool
		Subnets        []*Subnet
		SecurityGroups []*SecurityGroup
		LoadBalancers  []EcsLoadBalancer

		HealthCheckGracePeriod int
		// Listeners must exist before the service registers with their target groups.
		Listeners []*Listener
	}

	// EcsLoadBalancer registers ContainerName:ContainerPort with TargetGroup.
	EcsLoadBalancer struct {
		TargetGroup   *TargetGroup
		ContainerName string
		ContainerPort int
	}

	EcsServiceCreateParams struct {
		Name           string
		ServiceName    string
		Cluster        *EcsCluster
		TaskDefinition *EcsTaskDefinition
		DesiredCount   int
		AssignPublicIp bool
		Network        *Network
		SecurityGroups []*SecurityGroup
	}
)

func (cluster *EcsCluster) Create(dag *construct.Graph, params EcsClusterCreateParams) error {
	cluster.Name = clusterSanitizer.Apply(params.Name)
	if params.ClusterName != "" {
		cluster.ClusterName = clusterSanitizer.Apply(params.ClusterName)
	}
	return ensureUnique(dag, cluster)
}

func (cluster *EcsCluster) Id() construct.ResourceId {
	return construct.ResourceId{
		Provider: AWS_PROVIDER,
		Type:     ECS_CLUSTER_TYPE,
		Name:     cluster.Name,
	}
}

func (cluster *EcsCluster) CfnType() string {
	return "AWS::ECS::Cluster"
}

func (cluster *EcsCluster) CfnProperties() (map[string]any, error) {
	props := map[string]any{}
	optional(props, "ClusterName", cluster.ClusterName)
	if cluster.ContainerInsights {
		props["ClusterSettings"] = []any{map[string]any{"Name": "containerInsights", "Value": "enabled"}}
	}
	return props, nil
}

func (td *EcsTaskDefinition) Create(dag *construct.Graph, params EcsTaskDefinitionCreateParams) error {
	td.Name = taskDefSanitizer.Apply(params.Name)
	td.Family = taskDefSanitizer.Apply(params.Family)
	if err := ValidateFargateSize(params.Cpu, params.Memory); err != nil {
		return fmt.Errorf("task definition %s: %w", td.Name, err)
	}
	if params.ExecutionRole == nil {
		return fmt.Errorf("task definition %s has no execution role", td.Name)
	}
	td.Cpu = params.Cpu
	td.Memory = params.Memory
	td.ExecutionRole = params.ExecutionRole
	td.TaskRole = params.TaskRole
	td.ExecutionRole.AddManagedPolicy(AwsManagedPolicyArn("service-role/AmazonECSTaskExecutionRolePolicy"))
	return ensureUnique(dag, td)
}

func (td *EcsTaskDefinition) Id() construct.ResourceId {
	return construct.ResourceId{
		Provider: AWS_PROVIDER,
		Type:     ECS_TASK_DEFINITION_TYPE,
		Name:     td.Name,
	}
}

// AddContainer adds c to the task, granting the execution role what it needs to start it.
func (td *EcsTaskDefinition) AddContainer(c *ContainerDefinition) error {
	c.Name = containerSanitizer.Apply(c.Name)
	for _, existing := range td.Containers {
		if existing.Name == c.Name {
			return fmt.Errorf("task definition %s already has a container %s", td.Name, c.Name)
		}
	}
	if c.Image == nil {
		return fmt.Errorf("container %s has no image", c.Name)
	}
	for _, name := range sortedKeys(c.Secrets) {
		c.Secrets[name].GrantRead(td.ExecutionRole)
	}
	if c.LogGroup != nil {
		c.LogGroup.GrantWrite(td.ExecutionRole)
	}
	td.Containers = append(td.Containers, c)
	return nil
}

// AddPortMapping exposes port on the container. With awsvpc networking the host port always equals the container
// port.
func (c *ContainerDefinition) AddPortMapping(port int, protocol string) {
	if protocol == "" {
		protocol = "tcp"
	}
	for _, pm := range c.PortMappings {
		if pm.ContainerPort == port && pm.Protocol == protocol {
			return
		}
	}
	c.PortMappings = append(c.PortMappings, PortMapping{ContainerPort: port, HostPort: port, Protocol: protocol})
}

func (td *EcsTaskDefinition) CfnType() string {
	return "AWS::ECS::TaskDefinition"
}

func (td *EcsTaskDefinition) CfnProperties() (map[string]any, error) {
	if len(td.Containers) == 0 {
		return nil, fmt.Errorf("task definition %s has no containers", td.Name)
	}
	containers := make([]any, 0, len(td.Containers))
	for _, c := range td.Containers {
		containers = append(containers, c.cfnContainer())
	}
	props := map[string]any{
		"Family":                  td.Family,
		"Cpu":                     fmt.Sprint(td.Cpu),
		"Memory":                  fmt.Sprint(td.Memory),
		"NetworkMode":             NETWORK_MODE_AWSVPC,
		"RequiresCompatibilities": []any{LAUNCH_TYPE_FARGATE},
		"ExecutionRoleArn":        construct.ArnOf(td.ExecutionRole),
		"ContainerDefinitions":    containers,
	}
	if td.TaskRole != nil {
		props["TaskRoleArn"] = construct.ArnOf(td.TaskRole)
	}
	return props, nil
}

func (c *ContainerDefinition) cfnContainer() map[string]any {
	container := map[string]any{
		"Name":      c.Name,
		"Image":     c.Image,
		"Essential": c.Essential,
	}
	if len(c.PortMappings) > 0 {
		mappings := make([]any, 0, len(c.PortMappings))
		for _, pm := range c.PortMappings {
			mappings = append(mappings, map[string]any{
				"ContainerPort": pm.ContainerPort,
				"HostPort":      pm.HostPort,
				"Protocol":      pm.Protocol,
			})
		}
		container["PortMappings"] = mappings
	}
	if len(c.Environment) > 0 {
		env := make([]any, 0, len(c.Environment))
		for _, name := range sortedKeys(c.Environment) {
			env = append(env, map[string]any{
				"Name":  sanitization.EnvVarKeySanitizer.Apply(name),
				"Value": c.Environment[name],
			})
		}
		container["Environment"] = env
	}
	if len(c.Secrets) > 0 {
		secrets := make([]any, 0, len(c.Secrets))
		for _, name := range sortedKeys(c.Secrets) {
			secrets = append(secrets, map[string]any{
				"Name":      sanitization.EnvVarKeySanitizer.Apply(name),
				"ValueFrom": c.Secrets[name].ValueFrom(),
			})
		}
		container["Secrets"] = secrets
	}
	if c.LogGroup != nil {
		container["LogConfiguration"] = map[string]any{
			"LogDriver": "awslogs",
			"Options": map[string]any{
				"awslogs-group":         construct.RefOf(c.LogGroup),
				"awslogs-stream-prefix": valueOr(c.StreamPrefix, c.Name),
				"awslogs-region":        construct.Region,
			},
		}
	}
	return container
}

func valueOr(value, name string) string {
	if value == "" {
		return name
	}
	return value
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (svc *EcsService) Create(dag *construct.Graph, params EcsServiceCreateParams) error {
	svc.Name = serviceSanitizer.Apply(params.Name)
	if params.ServiceName != "" {
		svc.ServiceName = serviceSanitizer.Apply(params.ServiceName)
	}
	if params.Cluster == nil || params.TaskDefinition == nil || params.Network == nil {
		return fmt.Errorf("service %s needs a cluster, a task definition and a network", svc.Name)
	}
	svc.Cluster = params.Cluster
	svc.TaskDefinition = params.TaskDefinition
	svc.DesiredCount = params.DesiredCount
	svc.AssignPublicIp = params.AssignPublicIp
	svc.SecurityGroups = params.SecurityGroups

	// a task only gets a reachable public ip in a subnet routed to the internet gateway
	subnetType := PrivateSubnet
	if svc.AssignPublicIp {
		subnetType = PublicSubnet
	}
	svc.Subnets = params.Network.Subnets(subnetType)
	if len(svc.Subnets) == 0 {
		return fmt.Errorf("service %s: network has no %s subnets", svc.Name, subnetType)
	}
	return ensureUnique(dag, svc)
}

func (svc *EcsService) Id() construct.ResourceId {
	return construct.ResourceId{
		Provider: AWS_PROVIDER,
		Type:     ECS_SERVICE_TYPE,
		Name:     svc.Name,
	}
}

// AttachToTargetGroup registers the service's container with tg behind listener.
func (svc *EcsService) AttachToTargetGroup(tg *TargetGroup, listener *Listener, containerName string, containerPort int) {
	svc.LoadBalancers = append(svc.LoadBalancers, EcsLoadBalancer{
		TargetGroup:   tg,
		ContainerName: containerName,
		ContainerPort: containerPort,
	})
	if !slices.Contains(svc.Listeners, listener) {
		svc.Listeners = append(svc.Listeners, listener)
	}
	if svc.HealthCheckGracePeriod == 0 {
		svc.HealthCheckGracePeriod = 60
	}
}

func (svc *EcsService) CfnType() string {
	return "AWS::ECS::Service"
}

func (svc *EcsService) CfnProperties() (map[string]any, error) {
	subnets := make([]any, 0, len(svc.Subnets))
	for _, s := range svc.Subnets {
		subnets = append(subnets, construct.RefOf(s))
	}
	groups := make([]any, 0, len(svc.SecurityGroups))
	for _, sg := range svc.SecurityGroups {
		groups = append(groups, construct.AttrOf(sg, GROUP_ID_IAC_VALUE))
	}
	assignPublicIp := "DISABLED"
	if svc.AssignPublicIp {
		assignPublicIp = "ENABLED"
	}
	awsvpc := map[string]any{
		"AssignPublicIp": assignPublicIp,
		"Subnets":        subnets,
	}
	if len(groups) > 0 {
		awsvpc["SecurityGroups"] = groups
	}

	props := map[string]any{
		"Cluster":        construct.RefOf(svc.Cluster),
		"TaskDefinition": construct.RefOf(svc.TaskDefinition),
		"LaunchType":     LAUNCH_TYPE_FARGATE,
		"DesiredCount":   svc.DesiredCount,
		"DeploymentConfiguration": map[string]any{
			"MaximumPercent":        200,
			"MinimumHealthyPercent": 50,
			"DeploymentCircuitBreaker": map[string]any{
				"Enable":   true,
				"Rollback": true,
			},
		},
		"NetworkConfiguration": map[string]any{"AwsvpcConfiguration": awsvpc},
	}
	optional(props, "ServiceName", svc.ServiceName)
	if len(svc.LoadBalancers) > 0 {
		lbs := make([]any, 0, len(svc.LoadBalancers))
		for _, lb := range svc.LoadBalancers {
			lbs = append(lbs, map[string]any{
				"TargetGroupArn": construct.RefOf(lb.TargetGroup),
				"ContainerName":  lb.ContainerName,
				"ContainerPort":  lb.ContainerPort,
			})
		}
		props["LoadBalancers"] = lbs
		props["HealthCheckGracePeriodSeconds"] = svc.HealthCheckGracePeriod
	}
	return props, nil
}
