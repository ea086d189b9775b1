package resources

import (
	"fmt"
	"strings"

	"github.com/coreos/go-semver/semver"
	"github.com/flab-reels/authcdk/pkg/construct"
	"github.com/flab-reels/authcdk/pkg/sanitization/aws"
)

const (
	RDS_INSTANCE_TYPE     = "rds_instance"
	RDS_SUBNET_GROUP_TYPE = "rds_subnet_group"
)

var (
	rdsInstanceSanitizer    = aws.RdsInstanceSanitizer
	rdsSubnetGroupSanitizer = aws.RdsSubnetGroupSanitizer
	rdsDBNameSanitizer      = aws.RdsDBNameSanitizer
)

// engineDefaultPorts are the ports an instance listens on unless configured otherwise.
var engineDefaultPorts = map[string]int{
	"mysql":    3306,
	"mariadb":  3306,
	"postgres": 5432,
}

type (
	RdsInstance struct {
		Name               string
		InstanceIdentifier string
		DatabaseName       string
		Engine             string
		// EngineVersion is rendered as written; it has been checked with [ParseEngineVersion].
		EngineVersion      string
		InstanceClass      string
		AllocatedStorage   int
		SubnetGroup        *RdsSubnetGroup
		SecurityGroups     []*SecurityGroup
		PubliclyAccessible bool
		Username           string
		Password           SecretValue
	}

	RdsInstanceCreateParams struct {
		Name               string
		InstanceIdentifier string
		DatabaseName       string
		Engine             string
		EngineVersion      string
		InstanceClass      string
		AllocatedStorage   int
		SubnetGroup        *RdsSubnetGroup
		SecurityGroups     []*SecurityGroup
		PubliclyAccessible bool
		Username           string
		Password           SecretValue
	}

	RdsSubnetGroup struct {
		Name    string
		Subnets []*Subnet
	}

	RdsSubnetGroupCreateParams struct {
		Name    string
		Subnets []*Subnet
	}
)

// ParseEngineVersion parses an engine version of the form major.minor[.patch], such as 8.0 or 8.0.28. A missing
// patch number reads as 0.
func ParseEngineVersion(v string) (*semver.Version, error) {
	switch strings.Count(v, ".") {
	case 1:
		v += ".0"
	case 2:
	default:
		return nil, fmt.Errorf("engine version %q must be major.minor or major.minor.patch", v)
	}
	return semver.NewVersion(v)
}

func (instance *RdsInstance) Create(dag *construct.Graph, params RdsInstanceCreateParams) error {
	instance.Name = rdsInstanceSanitizer.Apply(params.Name)
	instance.InstanceIdentifier = rdsInstanceSanitizer.Apply(params.InstanceIdentifier)
	instance.DatabaseName = rdsDBNameSanitizer.Apply(params.DatabaseName)
	if _, ok := engineDefaultPorts[params.Engine]; !ok {
		return fmt.Errorf("rds instance %s: unsupported engine %q", instance.Name, params.Engine)
	}
	if _, err := ParseEngineVersion(params.EngineVersion); err != nil {
		return fmt.Errorf("rds instance %s: invalid engine version: %w", instance.Name, err)
	}
	if params.SubnetGroup == nil {
		return fmt.Errorf("rds instance %s has no subnet group", instance.Name)
	}
	if params.Username == "" || params.Password.SecretName == "" {
		return fmt.Errorf("rds instance %s needs a username and a password secret", instance.Name)
	}
	instance.Engine = params.Engine
	instance.EngineVersion = params.EngineVersion
	instance.InstanceClass = params.InstanceClass
	instance.AllocatedStorage = params.AllocatedStorage
	instance.SubnetGroup = params.SubnetGroup
	instance.SecurityGroups = params.SecurityGroups
	instance.PubliclyAccessible = params.PubliclyAccessible
	instance.Username = params.Username
	instance.Password = params.Password
	return ensureUnique(dag, instance)
}

func (instance *RdsInstance) Id() construct.ResourceId {
	return construct.ResourceId{
		Provider: AWS_PROVIDER,
		Type:     RDS_INSTANCE_TYPE,
		Name:     instance.Name,
	}
}

func (instance *RdsInstance) DefaultPort() int {
	return engineDefaultPorts[instance.Engine]
}

// AllowDefaultPortFromAnyIpv4 opens the instance's port to every IPv4 address on each of its security groups.
func (instance *RdsInstance) AllowDefaultPortFromAnyIpv4(dag *construct.Graph) error {
	if len(instance.SecurityGroups) == 0 {
		return fmt.Errorf("rds instance %s has no security groups", instance.Name)
	}
	for _, sg := range instance.SecurityGroups {
		err := sg.AddIngressRule(dag, AnyIpv4(), Tcp(instance.DefaultPort()), fmt.Sprintf("from 0.0.0.0/0:%d", instance.DefaultPort()))
		if err != nil {
			return err
		}
	}
	return nil
}

// EndpointAddress is the hostname clients connect to.
func (instance *RdsInstance) EndpointAddress() construct.IaCValue {
	return construct.AttrOf(instance, ENDPOINT_ADDRESS_IAC_VALUE)
}

func (instance *RdsInstance) CfnType() string {
	return "AWS::RDS::DBInstance"
}

func (instance *RdsInstance) CfnDeletionPolicy() string {
	return "Snapshot"
}

func (instance *RdsInstance) CfnProperties() (map[string]any, error) {
	groups := make([]any, 0, len(instance.SecurityGroups))
	for _, sg := range instance.SecurityGroups {
		groups = append(groups, construct.AttrOf(sg, GROUP_ID_IAC_VALUE))
	}
	props := map[string]any{
		"DBInstanceIdentifier": instance.InstanceIdentifier,
		"Engine":               instance.Engine,
		"EngineVersion":        instance.EngineVersion,
		"DBInstanceClass":      instance.InstanceClass,
		"AllocatedStorage":     fmt.Sprint(instance.AllocatedStorage),
		"StorageType":          "gp2",
		"DBSubnetGroupName":    construct.RefOf(instance.SubnetGroup),
		"VPCSecurityGroups":    groups,
		"PubliclyAccessible":   instance.PubliclyAccessible,
		"MasterUsername":       instance.Username,
		"MasterUserPassword":   instance.Password,
		"CopyTagsToSnapshot":   true,
	}
	optional(props, "DBName", instance.DatabaseName)
	return props, nil
}

func (sng *RdsSubnetGroup) Create(dag *construct.Graph, params RdsSubnetGroupCreateParams) error {
	sng.Name = rdsSubnetGroupSanitizer.Apply(params.Name)
	if len(params.Subnets) < 2 {
		return fmt.Errorf("rds subnet group %s needs subnets in at least two availability zones", sng.Name)
	}
	sng.Subnets = params.Subnets
	return ensureUnique(dag, sng)
}

func (sng *RdsSubnetGroup) Id() construct.ResourceId {
	return construct.ResourceId{
		Provider: AWS_PROVIDER,
		Type:     RDS_SUBNET_GROUP_TYPE,
		Name:     sng.Name,
	}
}

func (sng *RdsSubnetGroup) CfnType() string {
	return "AWS::RDS::DBSubnetGroup"
}

func (sng *RdsSubnetGroup) CfnProperties() (map[string]any, error) {
	subnets := make([]any, 0, len(sng.Subnets))
	for _, s := range sng.Subnets {
		subnets = append(subnets, construct.RefOf(s))
	}
	return map[string]any{
		"DBSubnetGroupDescription": "Subnet group for " + sng.Name,
		"SubnetIds":                subnets,
	}, nil
}
