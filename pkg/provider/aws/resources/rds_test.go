package resources

import (
	"testing"

	"github.com/flab-reels/authcdk/pkg/construct"
	"github.com/flab-reels/authcdk/pkg/construct/constructtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDatabase(t *testing.T, dag *construct.Graph, params RdsInstanceCreateParams) (*RdsInstance, error) {
	require := require.New(t)
	network, err := CreateNetwork(dag, NetworkCreateParams{Name: "auth-db-vpc", CidrBlock: "10.0.0.0/16", MaxAzs: 2})
	require.NoError(err)
	sg := &SecurityGroup{}
	require.NoError(sg.Create(dag, SecurityGroupCreateParams{Name: "auth-db-sg", Vpc: network.Vpc, AllowAllOutbound: true}))
	subnets := &RdsSubnetGroup{}
	require.NoError(subnets.Create(dag, RdsSubnetGroupCreateParams{Name: "auth-db-subnets", Subnets: network.PublicSubnets}))

	params.SubnetGroup = subnets
	params.SecurityGroups = []*SecurityGroup{sg}
	db := &RdsInstance{}
	return db, db.Create(dag, params)
}

func validDatabaseParams() RdsInstanceCreateParams {
	return RdsInstanceCreateParams{
		Name:               "auth-db",
		InstanceIdentifier: "auth-db",
		DatabaseName:       "user",
		Engine:             "mysql",
		EngineVersion:      "8.0.28",
		InstanceClass:      "db.t3.micro",
		AllocatedStorage:   20,
		PubliclyAccessible: true,
		Username:           "admin",
		Password:           SecretsManagerValue("auth-db-pw"),
	}
}

func Test_RdsInstance_Create(t *testing.T) {
	assert := assert.New(t)
	dag := construct.NewGraph()
	db, err := newTestDatabase(t, dag, validDatabaseParams())
	if !assert.NoError(err) {
		return
	}
	sg := db.SecurityGroups[0]
	assert.NoError(sg.AddIngressRule(dag, AnyIpv4(), Tcp(3306), "from 0.0.0.0/0:3306"))
	assert.NoError(sg.AddIngressRule(dag, AnyIpv6(), Tcp(3306), "from ::/0:3306"))
	assert.NoError(sg.AddIngressRule(dag, GroupPeer(sg), AllTraffic(), "self"))
	assert.NoError(db.AllowDefaultPortFromAnyIpv4(dag))

	assert.Equal(3306, db.DefaultPort())
	assert.Equal([]string{
		"0.0.0.0/0 tcp 3306",
		"::/0 tcp 3306",
		"auth-db-sg all",
	}, sg.IngressRuleSummary())

	constructtest.AddAllDependencies(t, dag)
	constructtest.ResourcesExpectation{
		Deps: []constructtest.StringDep{
			{Source: "aws:rds_instance:auth-db", Target: "aws:rds_subnet_group:auth-db-subnets"},
			{Source: "aws:rds_instance:auth-db", Target: "aws:security_group:auth-db-sg"},
			{Source: "aws:rds_subnet_group:auth-db-subnets", Target: "aws:subnet:auth-db-vpc:auth-db-vpc-public-1"},
			{Source: "aws:rds_subnet_group:auth-db-subnets", Target: "aws:subnet:auth-db-vpc:auth-db-vpc-public-2"},
		},
		AssertSubset: true,
	}.Assert(t, dag)

	props, err := db.CfnProperties()
	if !assert.NoError(err) {
		return
	}
	assert.Equal("8.0.28", props["EngineVersion"])
	assert.Equal("20", props["AllocatedStorage"])
	assert.Equal(true, props["PubliclyAccessible"])
	assert.Equal("admin", props["MasterUsername"])
	assert.Equal(SecretsManagerValue("auth-db-pw"), props["MasterUserPassword"])
	assert.Equal("user", props["DBName"])
	assert.Equal("Snapshot", db.CfnDeletionPolicy())
}

func Test_RdsInstance_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		modify func(p *RdsInstanceCreateParams)
	}{
		{name: "unsupported engine", modify: func(p *RdsInstanceCreateParams) { p.Engine = "oracle-ee" }},
		{name: "bad version", modify: func(p *RdsInstanceCreateParams) { p.EngineVersion = "eight" }},
		{name: "no username", modify: func(p *RdsInstanceCreateParams) { p.Username = "" }},
		{name: "no password", modify: func(p *RdsInstanceCreateParams) { p.Password = SecretValue{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := validDatabaseParams()
			tt.modify(&params)
			_, err := newTestDatabase(t, construct.NewGraph(), params)
			assert.Error(t, err)
		})
	}
}

func Test_RdsSubnetGroup_SingleSubnet(t *testing.T) {
	sng := &RdsSubnetGroup{}
	err := sng.Create(construct.NewGraph(), RdsSubnetGroupCreateParams{Name: "db", Subnets: []*Subnet{{Name: "only"}}})
	assert.Error(t, err)
}

func Test_ParseEngineVersion(t *testing.T) {
	tests := []struct {
		version string
		want    string
		wantErr bool
	}{
		{version: "8.0.28", want: "8.0.28"},
		{version: "8.0", want: "8.0.0"},
		{version: "5.7", want: "5.7.0"},
		{version: "8", wantErr: true},
		{version: "8.0.28.1", wantErr: true},
		{version: "8.x", wantErr: true},
		{version: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			assert := assert.New(t)
			v, err := ParseEngineVersion(tt.version)
			if tt.wantErr {
				assert.Error(err)
				return
			}
			if assert.NoError(err) {
				assert.Equal(tt.want, v.String())
			}
		})
	}
}

func Test_RdsInstance_MinorEngineVersion(t *testing.T) {
	assert := assert.New(t)
	params := validDatabaseParams()
	params.EngineVersion = "8.0"

	db, err := newTestDatabase(t, construct.NewGraph(), params)
	if !assert.NoError(err) {
		return
	}
	props, err := db.CfnProperties()
	if assert.NoError(err) {
		assert.Equal("8.0", props["EngineVersion"], "version is rendered as written")
	}
}
