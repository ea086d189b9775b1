package stacks

import (
	"context"
	"fmt"

	"github.com/flab-reels/authcdk/pkg/provider/aws/resources"
)

const DatabaseEngine = "mysql"

// DatabaseStack declares the MySQL instance in the public subnets of its own network. The network has no NAT
// gateways, so its private subnets are isolated.
func DatabaseStack(ctx context.Context, app *App) (*Stack, error) {
	cfg := app.Config.Database
	stack := newStack(cfg.StackName, fmt.Sprintf("%s user database", app.Config.AppName))
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

	sg := &resources.SecurityGroup{}
	err = sg.Create(dag, resources.SecurityGroupCreateParams{
		Name:             cfg.SecurityGroupName,
		Description:      fmt.Sprintf("%s database", app.Config.AppName),
		Vpc:              network.Vpc,
		AllowAllOutbound: true,
	})
	if err != nil {
		return nil, err
	}

	subnets := &resources.RdsSubnetGroup{}
	err = subnets.Create(dag, resources.RdsSubnetGroupCreateParams{
		Name:    cfg.InstanceIdentifier + "-subnets",
		Subnets: network.PublicSubnets,
	})
	if err != nil {
		return nil, err
	}

	db := &resources.RdsInstance{}
	err = db.Create(dag, resources.RdsInstanceCreateParams{
		Name:               cfg.InstanceIdentifier,
		InstanceIdentifier: cfg.InstanceIdentifier,
		DatabaseName:       cfg.DatabaseName,
		Engine:             DatabaseEngine,
		EngineVersion:      cfg.EngineVersion,
		InstanceClass:      cfg.InstanceClass,
		AllocatedStorage:   cfg.AllocatedStorage,
		SubnetGroup:        subnets,
		SecurityGroups:     []*resources.SecurityGroup{sg},
		PubliclyAccessible: cfg.PubliclyAccessible,
		Username:           cfg.Username,
		Password:           resources.SecretsManagerValue(cfg.PasswordSecret),
	})
	if err != nil {
		return nil, err
	}

	port := db.DefaultPort()
	rules := []struct {
		peer        resources.Peer
		port        resources.Port
		description string
	}{
		{resources.AnyIpv4(), resources.Tcp(port), fmt.Sprintf("allow %d from any ipv4", port)},
		{resources.AnyIpv6(), resources.Tcp(port), fmt.Sprintf("allow %d from any ipv6", port)},
		{resources.GroupPeer(sg), resources.AllTraffic(), "allow all traffic within the group"},
	}
	for _, rule := range rules {
		if err := sg.AddIngressRule(dag, rule.peer, rule.port, rule.description); err != nil {
			return nil, err
		}
	}
	// duplicates the first rule above, which keeps a single entry
	if err := db.AllowDefaultPortFromAnyIpv4(dag); err != nil {
		return nil, err
	}

	output := &resources.StackOutput{}
	err = output.Create(dag, resources.StackOutputCreateParams{
		Name:        cfg.EndpointOutputName,
		Value:       db.EndpointAddress(),
		Description: "hostname of the database endpoint",
	})
	if err != nil {
		return nil, err
	}

	return stack, stack.linkResources(ctx)
}
