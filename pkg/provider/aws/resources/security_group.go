package resources

import (
	"fmt"
	"sort"

	"github.com/flab-reels/authcdk/pkg/construct"
	"github.com/flab-reels/authcdk/pkg/sanitization/aws"
)

const (
	SECURITY_GROUP_TYPE      = "security_group"
	SECURITY_GROUP_RULE_TYPE = "security_group_ingress"
)

var securityGroupSanitizer = aws.SecurityGroupSanitizer

type (
	SecurityGroup struct {
		Name string
		// GroupName is the physical group name. Empty lets the provisioning engine generate one.
		GroupName        string
		Description      string
		Vpc              *Vpc
		IngressRules     []SecurityGroupRule
		EgressRules      []SecurityGroupRule
		AllowAllOutbound bool

		// groupRules are ingress rules from security groups. Each is declared as a SecurityGroupIngress resource and
		// adds no dependency to the group itself.
		groupRules []SecurityGroupRule
	}

	// SecurityGroupRule allows traffic on Port from (or to) Peer.
	SecurityGroupRule struct {
		Description string
		Peer        Peer
		Port        Port
	}

	// Peer is the other end of a rule: a CIDR range or a security group.
	Peer struct {
		CidrIp   string
		CidrIpv6 string
		Group    *SecurityGroup
	}

	Port struct {
		Protocol string
		FromPort int
		ToPort   int
	}

	// SecurityGroupIngress is a rule whose peer is a security group. It lives outside the group so a group can allow
	// traffic from itself.
	SecurityGroupIngress struct {
		Name   string
		Group  *SecurityGroup
		Source *SecurityGroup
		Port   Port
		// RuleDescription is not named Description to keep it apart from the group's description.
		RuleDescription string
	}

	SecurityGroupCreateParams struct {
		Name             string
		GroupName        string
		Description      string
		Vpc              *Vpc
		AllowAllOutbound bool
	}
)

func AnyIpv4() Peer { return Peer{CidrIp: anyIpv4Cidr} }
func AnyIpv6() Peer { return Peer{CidrIpv6: "::/0"} }
func Ipv4(cidr string) Peer { return Peer{CidrIp: cidr} }
func Ipv6(cidr string) Peer { return Peer{CidrIpv6: cidr} }
func GroupPeer(sg *SecurityGroup) Peer { return Peer{Group: sg} }

func Tcp(port int) Port { return Port{Protocol: "tcp", FromPort: port, ToPort: port} }
func TcpRange(from, to int) Port { return Port{Protocol: "tcp", FromPort: from, ToPort: to} }
func AllTraffic() Port { return Port{Protocol: "-1"} }

func (p Peer) String() string {
	switch {
	case p.Group != nil:
		return p.Group.Name
	case p.CidrIpv6 != "":
		return p.CidrIpv6
	default:
		return p.CidrIp
	}
}

func (p Port) String() string {
	if p.Protocol == "-1" {
		return "all"
	}
	if p.FromPort == p.ToPort {
		return fmt.Sprintf("%s %d", p.Protocol, p.FromPort)
	}
	return fmt.Sprintf("%s %d-%d", p.Protocol, p.FromPort, p.ToPort)
}

func (sg *SecurityGroup) Create(dag *construct.Graph, params SecurityGroupCreateParams) error {
	sg.Name = securityGroupSanitizer.Apply(params.Name)
	if params.GroupName != "" {
		sg.GroupName = securityGroupSanitizer.Apply(params.GroupName)
	}
	if params.Vpc == nil {
		return fmt.Errorf("security group %s has no vpc", sg.Name)
	}
	sg.Vpc = params.Vpc
	sg.Description = params.Description
	if sg.Description == "" {
		sg.Description = sg.Name
	}
	sg.AllowAllOutbound = params.AllowAllOutbound
	return ensureUnique(dag, sg)
}

func (sg *SecurityGroup) Id() construct.ResourceId {
	return construct.ResourceId{
		Provider: AWS_PROVIDER,
		Type:     SECURITY_GROUP_TYPE,
		Name:     sg.Name,
	}
}

// AddIngressRule allows traffic on port from peer. A rule already allowed is not added again, whatever its
// description. Rules from a security group (including sg itself) are declared as separate resources in dag.
func (sg *SecurityGroup) AddIngressRule(dag *construct.Graph, peer Peer, port Port, description string) error {
	rule := SecurityGroupRule{Description: description, Peer: peer, Port: port}
	for _, existing := range sg.AllIngressRules() {
		if existing.Peer == peer && existing.Port == port {
			return nil
		}
	}
	if peer.Group == nil {
		sg.IngressRules = append(sg.IngressRules, rule)
		return nil
	}
	sg.groupRules = append(sg.groupRules, rule)
	ingress := &SecurityGroupIngress{
		Name:            fmt.Sprintf("%s-from-%s-%s", sg.Name, peer.Group.Name, portName(port)),
		Group:           sg,
		Source:          peer.Group,
		Port:            port,
		RuleDescription: description,
	}
	return ensureUnique(dag, ingress)
}

// AddEgressRule allows traffic on port to peer. Egress rules are ignored while AllowAllOutbound is set.
func (sg *SecurityGroup) AddEgressRule(peer Peer, port Port, description string) error {
	if peer.Group != nil {
		return fmt.Errorf("egress rules to security groups are not supported")
	}
	for _, existing := range sg.EgressRules {
		if existing.Peer == peer && existing.Port == port {
			return nil
		}
	}
	sg.EgressRules = append(sg.EgressRules, SecurityGroupRule{Description: description, Peer: peer, Port: port})
	return nil
}

func portName(port Port) string {
	if port.Protocol == "-1" {
		return "all"
	}
	if port.FromPort == port.ToPort {
		return fmt.Sprintf("%d", port.FromPort)
	}
	return fmt.Sprintf("%d-%d", port.FromPort, port.ToPort)
}

func (sg *SecurityGroup) CfnType() string {
	return "AWS::EC2::SecurityGroup"
}

func (sg *SecurityGroup) CfnProperties() (map[string]any, error) {
	props := map[string]any{
		"GroupDescription": sg.Description,
		"VpcId":            construct.RefOf(sg.Vpc),
		"Tags":             nameTags(sg.Name),
	}
	optional(props, "GroupName", sg.GroupName)

	var ingress []any
	for _, rule := range sg.IngressRules {
		ingress = append(ingress, rule.cfnRule())
	}
	if len(ingress) > 0 {
		props["SecurityGroupIngress"] = ingress
	}

	egress := []any{}
	if sg.AllowAllOutbound {
		egress = append(egress, SecurityGroupRule{
			Description: "Allow all outbound traffic by default",
			Peer:        AnyIpv4(),
			Port:        AllTraffic(),
		}.cfnRule())
	} else if len(sg.EgressRules) == 0 {
		// an empty list would leave the default allow-all rule in place
		egress = append(egress, SecurityGroupRule{
			Description: "Disallow all traffic",
			Peer:        Ipv4("255.255.255.255/32"),
			Port:        Port{Protocol: "icmp", FromPort: 252, ToPort: 86},
		}.cfnRule())
	} else {
		for _, rule := range sg.EgressRules {
			egress = append(egress, rule.cfnRule())
		}
	}
	props["SecurityGroupEgress"] = egress
	return props, nil
}

func (rule SecurityGroupRule) cfnRule() map[string]any {
	r := map[string]any{"IpProtocol": rule.Port.Protocol}
	if rule.Port.Protocol != "-1" {
		r["FromPort"] = rule.Port.FromPort
		r["ToPort"] = rule.Port.ToPort
	}
	optional(r, "CidrIp", rule.Peer.CidrIp)
	optional(r, "CidrIpv6", rule.Peer.CidrIpv6)
	optional(r, "Description", rule.Description)
	return r
}

// AllIngressRules returns the CIDR rules followed by the security group rules.
func (sg *SecurityGroup) AllIngressRules() []SecurityGroupRule {
	rules := make([]SecurityGroupRule, 0, len(sg.IngressRules)+len(sg.groupRules))
	rules = append(rules, sg.IngressRules...)
	return append(rules, sg.groupRules...)
}

// IngressRuleSummary lists every ingress rule as `peer port`, sorted.
func (sg *SecurityGroup) IngressRuleSummary() []string {
	var ports []string
	for _, rule := range sg.AllIngressRules() {
		ports = append(ports, rule.Peer.String()+" "+rule.Port.String())
	}
	sort.Strings(ports)
	return ports
}

func (ingress *SecurityGroupIngress) Id() construct.ResourceId {
	return construct.ResourceId{
		Provider: AWS_PROVIDER,
		Type:     SECURITY_GROUP_RULE_TYPE,
		Name:     ingress.Name,
	}
}

func (ingress *SecurityGroupIngress) CfnType() string {
	return "AWS::EC2::SecurityGroupIngress"
}

func (ingress *SecurityGroupIngress) CfnProperties() (map[string]any, error) {
	props := map[string]any{
		"GroupId":               construct.AttrOf(ingress.Group, GROUP_ID_IAC_VALUE),
		"SourceSecurityGroupId": construct.AttrOf(ingress.Source, GROUP_ID_IAC_VALUE),
		"IpProtocol":            ingress.Port.Protocol,
	}
	if ingress.Port.Protocol != "-1" {
		props["FromPort"] = ingress.Port.FromPort
		props["ToPort"] = ingress.Port.ToPort
	}
	optional(props, "Description", ingress.RuleDescription)
	return props, nil
}
