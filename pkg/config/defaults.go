package config

const (
	DefaultOutDir         = "cdk.out"
	DefaultTemplateFormat = "json"
)

// DefaultApplication is the auth service as it is deployed today. Every field of a config file is decoded on top
// of these values.
func DefaultApplication() Application {
	noNat := 0
	return Application{
		AppName:        "auth",
		OutDir:         DefaultOutDir,
		TemplateFormat: DefaultTemplateFormat,
		Pipeline: Pipeline{
			StackName:        "EcsPipelineStack",
			Name:             "auth-pipeline",
			RepositoryName:   "auth-ecr-repository",
			MaxImageCount:    10,
			GitHubOwner:      "flab-reels",
			Branch:           "master",
			OAuthTokenSecret: "auth_demo_v6",
			AppSource: GitHubSource{
				ActionName: "auth-pipeline-github",
				Repo:       "auth",
			},
			InfraSource: GitHubSource{
				ActionName: "auth-pipeline-cdk",
				Repo:       "auth-cdk",
			},
			ImageBuild: BuildProject{
				ProjectName:     "auth-codebuild",
				ActionName:      "auth-docker-build-action",
				Image:           "AMAZON_LINUX_2",
				ComputeType:     "BUILD_GENERAL1_SMALL",
				Privileged:      true,
				RuntimeVersions: map[string]string{"java": "corretto11"},
			},
			SynthBuild: BuildProject{
				ProjectName:     "auth-cdk-codebuild",
				ActionName:      "CdkCodeBuildAndSynth",
				Image:           "AMAZON_LINUX_2_4",
				ComputeType:     "BUILD_GENERAL1_SMALL",
				Privileged:      true,
				RuntimeVersions: map[string]string{"golang": "1.22"},
			},
			DeployActionName: "CFN_Deploy",
			AdminPermissions: true,
		},
		Service: Service{
			StackName: "EcsStackDeployedInPipeline",
			Network: Network{
				VpcName:   "Vpc",
				CidrBlock: "10.0.0.0/16",
				MaxAzs:    2,
			},
			ClusterName:                "auth-cluster",
			RoleName:                   "auth-api-role",
			TaskFamily:                 "auth-task",
			Cpu:                        256,
			Memory:                     512,
			ContainerName:              "auth-container",
			ContainerPort:              8080,
			LogRetentionDays:           7,
			LoadBalancerName:           "auth-nlb",
			InternetFacing:             false,
			ListenerName:               "auth-listener",
			ListenerPort:               8080,
			SecurityGroupName:          "search-sg",
			IngressPorts:               []int{80, 8080},
			ServiceName:                "auth-svc",
			AssignPublicIp:             true,
			DesiredCount:               1,
			TargetGroupName:            "auth-tg",
			DeregistrationDelaySeconds: 300,
			HealthCheck: HealthCheck{
				IntervalSeconds:    30,
				HealthyThreshold:   3,
				UnhealthyThreshold: 3,
			},
			Scaling: Scaling{
				MinCapacity:          1,
				MaxCapacity:          4,
				TargetCpuUtilization: 70,
			},
		},
		Database: Database{
			Enabled:   true,
			StackName: "AuthDatabaseStack",
			Network: Network{
				VpcName:     "auth-db-vpc",
				CidrBlock:   "10.0.0.0/16",
				MaxAzs:      2,
				NatGateways: &noNat,
			},
			SecurityGroupName:  "auth-db-sg",
			InstanceIdentifier: "auth-user",
			DatabaseName:       "user",
			EngineVersion:      "8.0.28",
			InstanceClass:      "db.t2.micro",
			AllocatedStorage:   100,
			Username:           "admin",
			PasswordSecret:     "auth-db-pw",
			PubliclyAccessible: true,
			EndpointOutputName: "auth-db-Endpoint",
		},
		Publish: Publish{
			Pattern:     "**/*",
			Concurrency: 4,
		},
	}
}

// NatGatewayCount is the number of NAT gateways to create, one per availability zone unless configured.
func (n Network) NatGatewayCount() int {
	if n.NatGateways == nil {
		return n.MaxAzs
	}
	return *n.NatGateways
}

// Owner returns the source's owner, falling back to the pipeline's GitHubOwner.
func (p Pipeline) Owner(src GitHubSource) string {
	return ValueOrDefault(src.Owner, p.GitHubOwner)
}

// SourceBranch returns the source's branch, falling back to the pipeline's Branch.
func (p Pipeline) SourceBranch(src GitHubSource) string {
	return ValueOrDefault(src.Branch, p.Branch)
}
