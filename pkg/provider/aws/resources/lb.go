package resources

import (
	"fmt"
	"strconv"

	"github.com/flab-reels/authcdk/pkg/construct"
	"github.com/flab-reels/authcdk/pkg/sanitization/aws"
)

const (
	LOAD_BALANCER_TYPE = "load_balancer"
	LISTENER_TYPE      = "load_balancer_listener"
	TARGET_GROUP_TYPE  = "target_group"

	NetworkLoadBalancer     = "network"
	ApplicationLoadBalancer = "application"
)

var (
	loadBalancerSanitizer = aws.LoadBalancerSanitizer
	targetGroupSanitizer  = aws.TargetGroupSanitizer
)

type (
	LoadBalancer struct {
		Name             string
		LoadBalancerName string
		Type             string
		InternetFacing   bool
		Subnets          []*Subnet
		SecurityGroups   []*SecurityGroup
	}

	LoadBalancerCreateParams struct {
		Name             string
		LoadBalancerName string
		Type             string
		InternetFacing   bool
		Network          *Network
		SecurityGroups   []*SecurityGroup
	}

	Listener struct {
		Name               string
		LoadBalancer       *LoadBalancer
		Port               int
		Protocol           string
		DefaultTargetGroup *TargetGroup
	}

	ListenerCreateParams struct {
		Name         string
		LoadBalancer *LoadBalancer
		Port         int
	}

	TargetGroup struct {
		Name            string
		TargetGroupName string
		Vpc             *Vpc
		Port            int
		Protocol        string
		// DeregistrationDelay is how long (seconds) a draining target keeps receiving in-flight requests.
		DeregistrationDelay int
		HealthCheck         TargetGroupHealthCheck
	}

	TargetGroupHealthCheck struct {
		// Path switches the check to HTTP when set.
		Path               string
		IntervalSeconds    int
		HealthyThreshold   int
		UnhealthyThreshold int
	}

	TargetGroupCreateParams struct {
		Name                string
		TargetGroupName     string
		Vpc                 *Vpc
		Port                int
		Protocol            string
		DeregistrationDelay int
		HealthCheck         TargetGroupHealthCheck
	}
)

func (lb *LoadBalancer) Create(dag *construct.Graph, params LoadBalancerCreateParams) error {
	lb.Name = loadBalancerSanitizer.Apply(params.Name)
	if params.LoadBalancerName != "" {
		lb.LoadBalancerName = loadBalancerSanitizer.Apply(params.LoadBalancerName)
	}
	lb.Type = params.Type
	if lb.Type == "" {
		lb.Type = NetworkLoadBalancer
	}
	if lb.Type != NetworkLoadBalancer && lb.Type != ApplicationLoadBalancer {
		return fmt.Errorf("unknown load balancer type %s", lb.Type)
	}
	if params.Network == nil {
		return fmt.Errorf("load balancer %s has no network", lb.Name)
	}
	lb.InternetFacing = params.InternetFacing
	subnetType := PrivateSubnet
	if lb.InternetFacing {
		subnetType = PublicSubnet
	}
	lb.Subnets = params.Network.Subnets(subnetType)
	lb.SecurityGroups = params.SecurityGroups
	if lb.Type == ApplicationLoadBalancer && len(lb.SecurityGroups) == 0 {
		return fmt.Errorf("application load balancer %s needs a security group", lb.Name)
	}
	return ensureUnique(dag, lb)
}

func (lb *LoadBalancer) Id() construct.ResourceId {
	return construct.ResourceId{
		Provider: AWS_PROVIDER,
		Type:     LOAD_BALANCER_TYPE,
		Name:     lb.Name,
	}
}

// ListenerProtocol is the protocol listeners and targets use by default for the load balancer's type.
func (lb *LoadBalancer) ListenerProtocol() string {
	if lb.Type == ApplicationLoadBalancer {
		return "HTTP"
	}
	return "TCP"
}

func (lb *LoadBalancer) CfnType() string {
	return "AWS::ElasticLoadBalancingV2::LoadBalancer"
}

func (lb *LoadBalancer) CfnProperties() (map[string]any, error) {
	scheme := "internal"
	if lb.InternetFacing {
		scheme = "internet-facing"
	}
	subnets := make([]any, 0, len(lb.Subnets))
	for _, s := range lb.Subnets {
		subnets = append(subnets, construct.RefOf(s))
	}
	props := map[string]any{
		"Type":    lb.Type,
		"Scheme":  scheme,
		"Subnets": subnets,
	}
	optional(props, "Name", lb.LoadBalancerName)
	if len(lb.SecurityGroups) > 0 {
		groups := make([]any, 0, len(lb.SecurityGroups))
		for _, sg := range lb.SecurityGroups {
			groups = append(groups, construct.AttrOf(sg, GROUP_ID_IAC_VALUE))
		}
		props["SecurityGroups"] = groups
	}
	return props, nil
}

func (listener *Listener) Create(dag *construct.Graph, params ListenerCreateParams) error {
	if params.LoadBalancer == nil {
		return fmt.Errorf("listener %s has no load balancer", params.Name)
	}
	listener.Name = loadBalancerSanitizer.Apply(params.Name)
	listener.LoadBalancer = params.LoadBalancer
	listener.Port = params.Port
	listener.Protocol = params.LoadBalancer.ListenerProtocol()
	return ensureUnique(dag, listener)
}

func (listener *Listener) Id() construct.ResourceId {
	return construct.ResourceId{
		Provider:  AWS_PROVIDER,
		Type:      LISTENER_TYPE,
		Namespace: listener.LoadBalancer.Name,
		Name:      listener.Name,
	}
}

// AddTargets forwards the listener's traffic to tg.
func (listener *Listener) AddTargets(tg *TargetGroup) error {
	if listener.DefaultTargetGroup != nil && listener.DefaultTargetGroup != tg {
		return fmt.Errorf("listener %s already forwards to %s", listener.Name, listener.DefaultTargetGroup.Name)
	}
	listener.DefaultTargetGroup = tg
	return nil
}

func (listener *Listener) CfnType() string {
	return "AWS::ElasticLoadBalancingV2::Listener"
}

func (listener *Listener) CfnProperties() (map[string]any, error) {
	if listener.DefaultTargetGroup == nil {
		return nil, fmt.Errorf("listener %s has no targets", listener.Name)
	}
	return map[string]any{
		"LoadBalancerArn": construct.RefOf(listener.LoadBalancer),
		"Port":            listener.Port,
		"Protocol":        listener.Protocol,
		"DefaultActions": []any{
			map[string]any{
				"Type":           "forward",
				"TargetGroupArn": construct.RefOf(listener.DefaultTargetGroup),
			},
		},
	}, nil
}

func (tg *TargetGroup) Create(dag *construct.Graph, params TargetGroupCreateParams) error {
	tg.Name = targetGroupSanitizer.Apply(params.Name)
	if params.TargetGroupName != "" {
		tg.TargetGroupName = targetGroupSanitizer.Apply(params.TargetGroupName)
	}
	if params.Vpc == nil {
		return fmt.Errorf("target group %s has no vpc", tg.Name)
	}
	tg.Vpc = params.Vpc
	tg.Port = params.Port
	tg.Protocol = params.Protocol
	if tg.Protocol == "" {
		tg.Protocol = "TCP"
	}
	tg.DeregistrationDelay = params.DeregistrationDelay
	tg.HealthCheck = params.HealthCheck
	return ensureUnique(dag, tg)
}

func (tg *TargetGroup) Id() construct.ResourceId {
	return construct.ResourceId{
		Provider: AWS_PROVIDER,
		Type:     TARGET_GROUP_TYPE,
		Name:     tg.Name,
	}
}

func (tg *TargetGroup) CfnType() string {
	return "AWS::ElasticLoadBalancingV2::TargetGroup"
}

func (tg *TargetGroup) CfnProperties() (map[string]any, error) {
	props := map[string]any{
		"Port":       tg.Port,
		"Protocol":   tg.Protocol,
		"TargetType": "ip",
		"VpcId":      construct.RefOf(tg.Vpc),
	}
	optional(props, "Name", tg.TargetGroupName)
	if tg.DeregistrationDelay > 0 {
		props["TargetGroupAttributes"] = []any{
			map[string]any{
				"Key":   "deregistration_delay.timeout_seconds",
				"Value": strconv.Itoa(tg.DeregistrationDelay),
			},
		}
	}

	hc := tg.HealthCheck
	if hc.Path != "" {
		props["HealthCheckProtocol"] = "HTTP"
		props["HealthCheckPath"] = hc.Path
	} else {
		props["HealthCheckProtocol"] = "TCP"
	}
	optional(props, "HealthCheckIntervalSeconds", hc.IntervalSeconds)
	optional(props, "HealthyThresholdCount", hc.HealthyThreshold)
	optional(props, "UnhealthyThresholdCount", hc.UnhealthyThreshold)
	return props, nil
}
