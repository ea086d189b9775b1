package resources

import (
	"fmt"
	"math/bits"
	"net/netip"

	"github.com/flab-reels/authcdk/pkg/construct"
	"go.uber.org/zap"
)

const (
	VPC_TYPE                = "vpc"
	SUBNET_TYPE             = "subnet"
	INTERNET_GATEWAY_TYPE   = "internet_gateway"
	GATEWAY_ATTACHMENT_TYPE = "vpc_gateway_attachment"
	ELASTIC_IP_TYPE         = "elastic_ip"
	NAT_GATEWAY_TYPE        = "nat_gateway"
	ROUTE_TABLE_TYPE        = "route_table"
	ROUTE_TYPE              = "route"
	ROUTE_ASSOCIATION_TYPE  = "route_table_association"

	PublicSubnet   SubnetType = "public"
	PrivateSubnet  SubnetType = "private"
	IsolatedSubnet SubnetType = "isolated"

	anyIpv4Cidr = "0.0.0.0/0"
)

type (
	SubnetType string

	Vpc struct {
		Name               string
		CidrBlock          string
		EnableDnsSupport   bool
		EnableDnsHostnames bool
	}

	Subnet struct {
		Name             string
		Vpc              *Vpc
		CidrBlock        string
		Type             SubnetType
		AvailabilityZone construct.AvailabilityZone
	}

	InternetGateway struct {
		Name string
	}

	VpcGatewayAttachment struct {
		Name    string
		Vpc     *Vpc
		Gateway *InternetGateway
	}

	ElasticIp struct {
		Name string
	}

	NatGateway struct {
		Name      string
		ElasticIp *ElasticIp
		Subnet    *Subnet
		// PublicRoute must exist before the gateway can reach the internet.
		PublicRoute *Route
	}

	RouteTable struct {
		Name string
		Vpc  *Vpc
	}

	// Route sends DestinationCidrBlock to exactly one of Gateway or NatGateway.
	Route struct {
		Name                 string
		RouteTable           *RouteTable
		DestinationCidrBlock string
		Gateway              *InternetGateway
		NatGateway           *NatGateway
		// Attachment is required before routes through Gateway can be created.
		Attachment *VpcGatewayAttachment
	}

	SubnetRouteTableAssociation struct {
		Name       string
		Subnet     *Subnet
		RouteTable *RouteTable
	}

	// Network is a VPC spread across availability zones, with one public and one private (or isolated) subnet per
	// zone.
	Network struct {
		Vpc            *Vpc
		PublicSubnets  []*Subnet
		PrivateSubnets []*Subnet
		NatGateways    []*NatGateway
	}

	NetworkCreateParams struct {
		Name      string
		CidrBlock string
		MaxAzs    int
		// NatGateways is the number of NAT gateways shared by the private subnets. Zero makes them isolated.
		NatGateways int
	}
)

// CreateNetwork declares a VPC with its subnets, gateways and routing.
func CreateNetwork(dag *construct.Graph, params NetworkCreateParams) (*Network, error) {
	if params.MaxAzs < 1 {
		return nil, fmt.Errorf("network %s needs at least one availability zone", params.Name)
	}
	cidr, err := netip.ParsePrefix(params.CidrBlock)
	if err != nil {
		return nil, fmt.Errorf("network %s: %w", params.Name, err)
	}
	blocks, err := SplitCidr(cidr, 2*params.MaxAzs)
	if err != nil {
		return nil, fmt.Errorf("network %s: %w", params.Name, err)
	}
	natCount := min(params.NatGateways, params.MaxAzs)
	privateType := PrivateSubnet
	if natCount <= 0 {
		privateType = IsolatedSubnet
	}

	network := &Network{Vpc: &Vpc{}}
	if err := network.Vpc.Create(dag, VpcCreateParams{Name: params.Name, CidrBlock: cidr.Masked().String()}); err != nil {
		return nil, err
	}

	igw := &InternetGateway{Name: params.Name + "-igw"}
	if err := ensureUnique(dag, igw); err != nil {
		return nil, err
	}
	attachment := &VpcGatewayAttachment{Name: params.Name + "-igw-attachment", Vpc: network.Vpc, Gateway: igw}
	if err := ensureUnique(dag, attachment); err != nil {
		return nil, err
	}

	for az := 0; az < params.MaxAzs; az++ {
		subnet, err := network.addSubnet(dag, PublicSubnet, az, blocks[az])
		if err != nil {
			return nil, err
		}
		route, err := routeSubnet(dag, subnet, &Route{
			DestinationCidrBlock: anyIpv4Cidr,
			Gateway:              igw,
			Attachment:           attachment,
		})
		if err != nil {
			return nil, err
		}
		if az < natCount {
			nat, err := createNatGateway(dag, subnet, route)
			if err != nil {
				return nil, err
			}
			network.NatGateways = append(network.NatGateways, nat)
		}
		network.PublicSubnets = append(network.PublicSubnets, subnet)
	}

	for az := 0; az < params.MaxAzs; az++ {
		subnet, err := network.addSubnet(dag, privateType, az, blocks[params.MaxAzs+az])
		if err != nil {
			return nil, err
		}
		var defaultRoute *Route
		if privateType == PrivateSubnet {
			defaultRoute = &Route{
				DestinationCidrBlock: anyIpv4Cidr,
				NatGateway:           network.NatGateways[az%natCount],
			}
		}
		if _, err := routeSubnet(dag, subnet, defaultRoute); err != nil {
			return nil, err
		}
		network.PrivateSubnets = append(network.PrivateSubnets, subnet)
	}

	zap.S().Debugf("network %s: %d public, %d %s subnets, %d nat gateways",
		params.Name, len(network.PublicSubnets), len(network.PrivateSubnets), privateType, natCount)
	return network, nil
}

// Subnets returns the subnets of the given type. Asking for private subnets of a network without NAT gateways
// returns its isolated subnets.
func (n *Network) Subnets(t SubnetType) []*Subnet {
	if t == PublicSubnet {
		return n.PublicSubnets
	}
	return n.PrivateSubnets
}

func (n *Network) addSubnet(dag *construct.Graph, t SubnetType, az int, cidr netip.Prefix) (*Subnet, error) {
	subnet := &Subnet{
		Name:             fmt.Sprintf("%s-%s-%d", n.Vpc.Name, t, az+1),
		Vpc:              n.Vpc,
		CidrBlock:        cidr.String(),
		Type:             t,
		AvailabilityZone: construct.AvailabilityZone{Index: az},
	}
	return subnet, ensureUnique(dag, subnet)
}

// routeSubnet gives subnet its own route table, holding defaultRoute if it is not nil.
func routeSubnet(dag *construct.Graph, subnet *Subnet, defaultRoute *Route) (*Route, error) {
	table := &RouteTable{Name: subnet.Name + "-rt", Vpc: subnet.Vpc}
	if err := ensureUnique(dag, table); err != nil {
		return nil, err
	}
	assoc := &SubnetRouteTableAssociation{Name: subnet.Name + "-rta", Subnet: subnet, RouteTable: table}
	if err := ensureUnique(dag, assoc); err != nil {
		return nil, err
	}
	if defaultRoute == nil {
		return nil, nil
	}
	defaultRoute.Name = subnet.Name + "-default-route"
	defaultRoute.RouteTable = table
	return defaultRoute, ensureUnique(dag, defaultRoute)
}

func createNatGateway(dag *construct.Graph, subnet *Subnet, publicRoute *Route) (*NatGateway, error) {
	eip := &ElasticIp{Name: subnet.Name + "-eip"}
	if err := ensureUnique(dag, eip); err != nil {
		return nil, err
	}
	nat := &NatGateway{Name: subnet.Name + "-nat", ElasticIp: eip, Subnet: subnet, PublicRoute: publicRoute}
	return nat, ensureUnique(dag, nat)
}

// SplitCidr divides prefix into the smallest power of two of equal blocks that is at least count, returning the
// first count of them.
func SplitCidr(prefix netip.Prefix, count int) ([]netip.Prefix, error) {
	if count < 1 {
		return nil, fmt.Errorf("cannot split %s into %d blocks", prefix, count)
	}
	extra := bits.Len(uint(count - 1))
	size := prefix.Bits() + extra
	if size > prefix.Addr().BitLen() {
		return nil, fmt.Errorf("%s is too small for %d subnets", prefix, count)
	}
	blocks := make([]netip.Prefix, 0, count)
	addr := prefix.Masked().Addr()
	for i := 0; i < count; i++ {
		block := netip.PrefixFrom(addr, size)
		blocks = append(blocks, block)
		addr = nextBlock(addr, block.Addr().BitLen()-size)
	}
	return blocks, nil
}

// nextBlock adds 2^hostBits to addr.
func nextBlock(addr netip.Addr, hostBits int) netip.Addr {
	b := addr.AsSlice()
	carry := 1 << (hostBits % 8)
	for i := len(b) - 1 - hostBits/8; i >= 0 && carry > 0; i-- {
		sum := int(b[i]) + carry
		b[i] = byte(sum)
		carry = sum >> 8
	}
	next, _ := netip.AddrFromSlice(b)
	return next
}

type VpcCreateParams struct {
	Name      string
	CidrBlock string
}

func (vpc *Vpc) Create(dag *construct.Graph, params VpcCreateParams) error {
	vpc.Name = params.Name
	vpc.CidrBlock = params.CidrBlock
	vpc.EnableDnsSupport = true
	vpc.EnableDnsHostnames = true
	return ensureUnique(dag, vpc)
}

func (vpc *Vpc) Id() construct.ResourceId {
	return construct.ResourceId{Provider: AWS_PROVIDER, Type: VPC_TYPE, Name: vpc.Name}
}

func (vpc *Vpc) CfnType() string { return "AWS::EC2::VPC" }

func (vpc *Vpc) CfnProperties() (map[string]any, error) {
	return map[string]any{
		"CidrBlock":          vpc.CidrBlock,
		"EnableDnsSupport":   vpc.EnableDnsSupport,
		"EnableDnsHostnames": vpc.EnableDnsHostnames,
		"InstanceTenancy":    "default",
		"Tags":               nameTags(vpc.Name),
	}, nil
}

func (subnet *Subnet) Id() construct.ResourceId {
	return construct.ResourceId{Provider: AWS_PROVIDER, Type: SUBNET_TYPE, Namespace: subnet.Vpc.Name, Name: subnet.Name}
}

func (subnet *Subnet) CfnType() string { return "AWS::EC2::Subnet" }

func (subnet *Subnet) CfnProperties() (map[string]any, error) {
	tags := nameTags(subnet.Name)
	tags = append(tags, map[string]any{"Key": "SubnetType", "Value": string(subnet.Type)})
	return map[string]any{
		"VpcId":               construct.RefOf(subnet.Vpc),
		"CidrBlock":           subnet.CidrBlock,
		"AvailabilityZone":    subnet.AvailabilityZone,
		"MapPublicIpOnLaunch": subnet.Type == PublicSubnet,
		"Tags":                tags,
	}, nil
}

func (igw *InternetGateway) Id() construct.ResourceId {
	return construct.ResourceId{Provider: AWS_PROVIDER, Type: INTERNET_GATEWAY_TYPE, Name: igw.Name}
}

func (igw *InternetGateway) CfnType() string { return "AWS::EC2::InternetGateway" }

func (igw *InternetGateway) CfnProperties() (map[string]any, error) {
	return map[string]any{"Tags": nameTags(igw.Name)}, nil
}

func (a *VpcGatewayAttachment) Id() construct.ResourceId {
	return construct.ResourceId{Provider: AWS_PROVIDER, Type: GATEWAY_ATTACHMENT_TYPE, Name: a.Name}
}

func (a *VpcGatewayAttachment) CfnType() string { return "AWS::EC2::VPCGatewayAttachment" }

func (a *VpcGatewayAttachment) CfnProperties() (map[string]any, error) {
	return map[string]any{
		"VpcId":             construct.RefOf(a.Vpc),
		"InternetGatewayId": construct.RefOf(a.Gateway),
	}, nil
}

func (eip *ElasticIp) Id() construct.ResourceId {
	return construct.ResourceId{Provider: AWS_PROVIDER, Type: ELASTIC_IP_TYPE, Name: eip.Name}
}

func (eip *ElasticIp) CfnType() string { return "AWS::EC2::EIP" }

func (eip *ElasticIp) CfnProperties() (map[string]any, error) {
	return map[string]any{"Domain": "vpc", "Tags": nameTags(eip.Name)}, nil
}

func (nat *NatGateway) Id() construct.ResourceId {
	return construct.ResourceId{Provider: AWS_PROVIDER, Type: NAT_GATEWAY_TYPE, Name: nat.Name}
}

func (nat *NatGateway) CfnType() string { return "AWS::EC2::NatGateway" }

func (nat *NatGateway) CfnProperties() (map[string]any, error) {
	return map[string]any{
		"AllocationId": construct.AttrOf(nat.ElasticIp, ALLOCATION_ID_IAC_VALUE),
		"SubnetId":     construct.RefOf(nat.Subnet),
		"Tags":         nameTags(nat.Name),
	}, nil
}

func (rt *RouteTable) Id() construct.ResourceId {
	return construct.ResourceId{Provider: AWS_PROVIDER, Type: ROUTE_TABLE_TYPE, Name: rt.Name}
}

func (rt *RouteTable) CfnType() string { return "AWS::EC2::RouteTable" }

func (rt *RouteTable) CfnProperties() (map[string]any, error) {
	return map[string]any{
		"VpcId": construct.RefOf(rt.Vpc),
		"Tags":  nameTags(rt.Name),
	}, nil
}

func (route *Route) Id() construct.ResourceId {
	return construct.ResourceId{Provider: AWS_PROVIDER, Type: ROUTE_TYPE, Name: route.Name}
}

func (route *Route) CfnType() string { return "AWS::EC2::Route" }

func (route *Route) CfnProperties() (map[string]any, error) {
	props := map[string]any{
		"RouteTableId":         construct.RefOf(route.RouteTable),
		"DestinationCidrBlock": route.DestinationCidrBlock,
	}
	switch {
	case route.Gateway != nil && route.NatGateway == nil:
		props["GatewayId"] = construct.RefOf(route.Gateway)
	case route.NatGateway != nil && route.Gateway == nil:
		props["NatGatewayId"] = construct.RefOf(route.NatGateway)
	default:
		return nil, fmt.Errorf("route %s must target exactly one gateway", route.Name)
	}
	return props, nil
}

func (assoc *SubnetRouteTableAssociation) Id() construct.ResourceId {
	return construct.ResourceId{Provider: AWS_PROVIDER, Type: ROUTE_ASSOCIATION_TYPE, Name: assoc.Name}
}

func (assoc *SubnetRouteTableAssociation) CfnType() string {
	return "AWS::EC2::SubnetRouteTableAssociation"
}

func (assoc *SubnetRouteTableAssociation) CfnProperties() (map[string]any, error) {
	return map[string]any{
		"SubnetId":     construct.RefOf(assoc.Subnet),
		"RouteTableId": construct.RefOf(assoc.RouteTable),
	}, nil
}
