package cloudformation

// knownAttributes lists, per resource type, the attributes Fn::GetAtt may read.
var knownAttributes = map[string][]string{
	"AWS::ApplicationAutoScaling::ScalableTarget": {"Id"},
	"AWS::ApplicationAutoScaling::ScalingPolicy":  {"Arn"},
	"AWS::CodeBuild::Project":                     {"Arn"},
	"AWS::CodePipeline::Pipeline":                 {"Version"},
	"AWS::CodePipeline::Webhook":                  {"Url"},
	"AWS::EC2::EIP":                               {"AllocationId", "PublicIp"},
	"AWS::EC2::InternetGateway":                   {"InternetGatewayId"},
	"AWS::EC2::NatGateway":                        {"NatGatewayId"},
	"AWS::EC2::RouteTable":                        {"RouteTableId"},
	"AWS::EC2::SecurityGroup":                     {"GroupId", "VpcId"},
	"AWS::EC2::Subnet":                            {"AvailabilityZone", "CidrBlock", "SubnetId", "VpcId"},
	"AWS::EC2::VPC":                               {"CidrBlock", "DefaultSecurityGroup", "VpcId"},
	"AWS::ECR::Repository":                        {"Arn", "RepositoryUri"},
	"AWS::ECS::Cluster":                           {"Arn"},
	"AWS::ECS::Service":                           {"Name", "ServiceArn"},
	"AWS::ECS::TaskDefinition":                    {"TaskDefinitionArn"},
	"AWS::ElasticLoadBalancingV2::Listener":       {"ListenerArn"},
	"AWS::ElasticLoadBalancingV2::LoadBalancer":   {"CanonicalHostedZoneID", "DNSName", "LoadBalancerArn", "LoadBalancerFullName", "LoadBalancerName"},
	"AWS::ElasticLoadBalancingV2::TargetGroup":    {"TargetGroupArn", "TargetGroupFullName", "TargetGroupName"},
	"AWS::IAM::Role":                              {"Arn", "RoleId"},
	"AWS::Logs::LogGroup":                         {"Arn"},
	"AWS::RDS::DBInstance":                        {"DBInstanceArn", "Endpoint.Address", "Endpoint.Port"},
	"AWS::S3::Bucket":                             {"Arn", "DomainName", "RegionalDomainName", "WebsiteURL"},
}
