package stacks

import (
	"context"
	"testing"

	"github.com/flab-reels/authcdk/pkg/config"
	"github.com/flab-reels/authcdk/pkg/construct"
	"github.com/flab-reels/authcdk/pkg/construct/constructtest"
	"github.com/flab-reels/authcdk/pkg/infra/cloudformation"
	"github.com/flab-reels/authcdk/pkg/logging"
	"github.com/flab-reels/authcdk/pkg/provider/aws/resources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func buildDefault(t *testing.T) *App {
	app, err := Build(context.Background(), config.DefaultApplication())
	require.NoError(t, err)
	return app
}

func stackTemplate(t *testing.T, app *App, name string) *cloudformation.Template {
	s, ok := app.Stack(name)
	require.True(t, ok, "stack %s", name)
	tmpl, err := s.Template()
	require.NoError(t, err)
	return tmpl
}

func resourcesOfType(tmpl *cloudformation.Template, cfnType string) map[string]cloudformation.Resource {
	found := make(map[string]cloudformation.Resource)
	for id, r := range tmpl.Resources {
		if r.Type == cfnType {
			found[id] = r
		}
	}
	return found
}

func onlyResource(t *testing.T, tmpl *cloudformation.Template, cfnType string) cloudformation.Resource {
	found := resourcesOfType(tmpl, cfnType)
	require.Len(t, found, 1, "resources of type %s", cfnType)
	for _, r := range found {
		return r
	}
	return cloudformation.Resource{}
}

func Test_Build(t *testing.T) {
	tests := []struct {
		name     string
		modify   func(*config.Application)
		want     []string
		wantDeps map[string][]string
		wantErr  bool
	}{
		{
			name: "defaults",
			want: []string{"EcsPipelineStack", "EcsStackDeployedInPipeline", "AuthDatabaseStack"},
			wantDeps: map[string][]string{
				"EcsStackDeployedInPipeline": {"EcsPipelineStack"},
			},
		},
		{
			name:   "database disabled",
			modify: func(a *config.Application) { a.Database.Enabled = false },
			want:   []string{"EcsPipelineStack", "EcsStackDeployedInPipeline"},
		},
		{
			name:    "invalid fargate size",
			modify:  func(a *config.Application) { a.Service.Memory = 4096 },
			wantErr: true,
		},
		{
			name:    "unknown build image",
			modify:  func(a *config.Application) { a.Pipeline.ImageBuild.Image = "WINDOWS_2019" },
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			cfg := config.DefaultApplication()
			if tt.modify != nil {
				tt.modify(&cfg)
			}
			app, err := Build(context.Background(), cfg)
			if tt.wantErr {
				assert.Error(err)
				return
			}
			if !assert.NoError(err) {
				return
			}
			var names []string
			for _, s := range app.Stacks() {
				names = append(names, s.Name)
				assert.Equal(tt.wantDeps[s.Name], s.Dependencies, "dependencies of %s", s.Name)
			}
			assert.Equal(tt.want, names)
		})
	}
}

func Test_App_Select(t *testing.T) {
	assert := assert.New(t)
	app := buildDefault(t)

	all, err := app.Select(nil)
	assert.NoError(err)
	assert.Len(all, 3)

	selected, err := app.Select([]string{"AuthDatabaseStack", "EcsPipelineStack"})
	if assert.NoError(err) && assert.Len(selected, 2) {
		// app order, not argument order
		assert.Equal("EcsPipelineStack", selected[0].Name)
		assert.Equal("AuthDatabaseStack", selected[1].Name)
	}

	_, err = app.Select([]string{"EcsPipelineStack", "Nope", "AlsoNope"})
	assert.ErrorContains(err, "no stack named Nope")
	assert.ErrorContains(err, "no stack named AlsoNope")
}

func Test_App_AddStack(t *testing.T) {
	assert := assert.New(t)
	app := NewApp(config.DefaultApplication())

	assert.NoError(app.AddStack(newStack("a", "")))
	assert.ErrorContains(app.AddStack(newStack("a", "")), "duplicate stack a")

	b := newStack("b", "")
	b.Dependencies = []string{"c"}
	assert.ErrorContains(app.AddStack(b), "unknown stack c")
}

func Test_PipelineStack(t *testing.T) {
	assert := assert.New(t)
	app := buildDefault(t)
	pipelineStack, _ := app.Stack("EcsPipelineStack")

	constructtest.ResourcesExpectation{
		Nodes: []string{
			"aws:ecr_repo:auth-ecr-repository",
			"aws:codebuild_project:auth-codebuild",
			"aws:codebuild_project:auth-cdk-codebuild",
			"aws:codepipeline:auth-pipeline",
			"aws:codepipeline_webhook:auth-pipeline-Source-auth-pipeline-github-webhook",
			"aws:codepipeline_webhook:auth-pipeline-Source-auth-pipeline-cdk-webhook",
			"aws:iam_role:auth-pipeline-Deploy-CFN_Deploy-role",
			"aws:s3_bucket:auth-pipeline-artifacts",
		},
		Deps: []constructtest.StringDep{
			{Source: "aws:codepipeline:auth-pipeline", Target: "aws:codebuild_project:auth-codebuild"},
			{Source: "aws:codepipeline:auth-pipeline", Target: "aws:codebuild_project:auth-cdk-codebuild"},
			{Source: "aws:codepipeline:auth-pipeline", Target: "aws:s3_bucket:auth-pipeline-artifacts"},
			{Source: "aws:codebuild_project:auth-codebuild", Target: "aws:ecr_repo:auth-ecr-repository"},
		},
		AssertSubset: true,
	}.Assert(t, pipelineStack.Graph)

	tmpl := stackTemplate(t, app, "EcsPipelineStack")
	assert.Empty(tmpl.Parameters, "the pipeline stack takes no parameters")

	repo := construct.ResourceId{Provider: resources.AWS_PROVIDER, Type: resources.ECR_REPO_TYPE, Name: "auth-ecr-repository"}
	imageProject := tmpl.Resources[cloudformation.LogicalId(construct.ResourceId{
		Provider: resources.AWS_PROVIDER, Type: resources.CODEBUILD_PROJECT_TYPE, Name: "auth-codebuild",
	})]
	env := imageProject.Properties["Environment"].(map[string]any)
	assert.Equal(true, env["PrivilegedMode"])
	assert.Contains(env["EnvironmentVariables"], map[string]any{
		"Name":  RepositoryUriVariable,
		"Type":  resources.EnvironmentVariablePlaintext,
		"Value": map[string]any{"Fn::GetAtt": []any{cloudformation.LogicalId(repo), "RepositoryUri"}},
	})

	pipeline := onlyResource(t, tmpl, "AWS::CodePipeline::Pipeline")
	stages := pipeline.Properties["Stages"].([]any)
	if !assert.Len(stages, 3) {
		return
	}
	var stageNames []string
	for _, s := range stages {
		stageNames = append(stageNames, s.(map[string]any)["Name"].(string))
	}
	assert.Equal([]string{SourceStage, BuildStage, DeployStage}, stageNames)

	deploy := stages[2].(map[string]any)["Actions"].([]any)[0].(map[string]any)
	assert.Equal("CFN_Deploy", deploy["Name"])
	deployConfig := deploy["Configuration"].(map[string]any)
	assert.Equal("EcsStackDeployedInPipeline", deployConfig["StackName"])
	assert.Equal("cdkCodeBuildOutput::EcsStackDeployedInPipeline.template.json", deployConfig["TemplatePath"])
	assert.Equal(`{"AuthEcrRepositoryTag":"#{auth-docker-build-action_NS.imageTag}"}`, deployConfig["ParameterOverrides"])
	assert.Equal(false, pipeline.Properties["RestartExecutionOnUpdate"])
}

func Test_PipelineStack_SynthBuildMatchesDeploy(t *testing.T) {
	tests := []struct {
		name       string
		modify     func(*config.Application)
		wantConfig string
	}{
		{
			name:   "defaults",
			modify: func(*config.Application) {},
		},
		{
			name: "config read from the infrastructure repository",
			modify: func(a *config.Application) {
				a.SourceFile = "deploy/authcdk.yaml"
				a.TemplateFormat = "yaml"
				a.Pipeline.RepositoryName = "reels-auth"
				a.Service.StackName = "AuthService"
			},
			wantConfig: "deploy/authcdk.yaml",
		},
		{
			name: "explicit synth config file",
			modify: func(a *config.Application) {
				a.SourceFile = "/home/ci/authcdk.yaml"
				a.Pipeline.SynthBuild.ConfigFile = "infra/authcdk.yaml"
				a.Service.StackName = "AuthService"
			},
			wantConfig: "infra/authcdk.yaml",
		},
		{
			name:   "absolute config path without synth config file",
			modify: func(a *config.Application) { a.SourceFile = "/home/ci/authcdk.yaml" },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			cfg := config.DefaultApplication()
			tt.modify(&cfg)
			app, err := Build(context.Background(), cfg)
			require.NoError(err)
			format, err := cloudformation.ParseFormat(cfg.TemplateFormat)
			require.NoError(err)

			pipelineStack, _ := app.Stack(cfg.Pipeline.StackName)
			deploy := findDeployAction(t, pipelineStack.Graph)
			synth, ok := construct.GetResourceOfType[*resources.CodeBuildProject](pipelineStack.Graph, construct.ResourceId{
				Provider: resources.AWS_PROVIDER, Type: resources.CODEBUILD_PROJECT_TYPE, Name: cfg.Pipeline.SynthBuild.ProjectName,
			})
			require.True(ok)
			require.Len(synth.BuildSpec.Phases.Build.Commands, 1)
			command := synth.BuildSpec.Phases.Build.Commands[0]

			assert.Contains(command, " --stack "+cfg.Service.StackName+" ")
			assert.Contains(command, " --format "+string(format)+" ")
			assert.Equal(
				"cdkCodeBuildOutput::"+cloudformation.TemplateFileName(cfg.Service.StackName, format),
				deploy.TemplatePath.Location(),
			)
			if tt.wantConfig == "" {
				assert.NotContains(command, "--config")
			} else {
				assert.Contains(command, " --config '"+tt.wantConfig+"' ")
			}

			service := stackTemplate(t, app, cfg.Service.StackName)
			require.Len(deploy.ParameterOverrides, 1)
			for name := range deploy.ParameterOverrides {
				assert.Contains(service.Parameters, name, "the synthesized service stack declares the overridden parameter")
			}
		})
	}
}

func Test_PipelineStack_RestartExecutionOnUpdate(t *testing.T) {
	assert := assert.New(t)
	cfg := config.DefaultApplication()
	cfg.Pipeline.RestartExecutionOnUpdate = true
	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)

	tmpl := stackTemplate(t, app, "EcsPipelineStack")
	pipeline := onlyResource(t, tmpl, "AWS::CodePipeline::Pipeline")
	assert.Equal(true, pipeline.Properties["RestartExecutionOnUpdate"])
}

func Test_PipelineStack_TemplatePathFollowsFormat(t *testing.T) {
	cfg := config.DefaultApplication()
	cfg.TemplateFormat = "yaml"
	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)

	pipelineStack, _ := app.Stack("EcsPipelineStack")
	deploy := findDeployAction(t, pipelineStack.Graph)
	assert.Equal(t, "cdkCodeBuildOutput::EcsStackDeployedInPipeline.template.yaml", deploy.TemplatePath.Location())
}

func Test_Build_LogsPerStack(t *testing.T) {
	assert := assert.New(t)
	core, logs := observer.New(zapcore.DebugLevel)
	ctx := logging.WithLogger(context.Background(), zap.New(core))

	cfg := config.DefaultApplication()
	cfg.Database.Enabled = true
	_, err := Build(ctx, cfg)
	require.NoError(t, err)

	stacksLogged := make(map[string]bool)
	for _, entry := range logs.FilterMessage("declared").All() {
		fields := entry.ContextMap()
		stack, ok := fields["stack"].(string)
		if assert.True(ok, "declared entry without a stack: %v", fields) {
			stacksLogged[stack] = true
		}
		assert.Contains(fields, "resource")
	}
	assert.Equal(map[string]bool{
		cfg.Pipeline.StackName: true,
		cfg.Service.StackName:  true,
		cfg.Database.StackName: true,
	}, stacksLogged)
	assert.Equal(1, logs.FilterField(logging.StackField("EcsPipelineStack")).FilterMessage("declared").
		FilterField(logging.ResourceField(construct.ResourceId{
			Provider: resources.AWS_PROVIDER, Type: resources.CODEPIPELINE_TYPE, Name: "auth-pipeline",
		})).Len())
}

func Test_Build_DatabaseDisabledLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ctx := logging.WithLogger(context.Background(), zap.New(core))

	cfg := config.DefaultApplication()
	cfg.Database.Enabled = false
	_, err := Build(ctx, cfg)
	require.NoError(t, err)

	assert.Equal(t, 1, logs.FilterMessage("disabled").FilterField(logging.StackField(cfg.Database.StackName)).Len())
}

func findDeployAction(t *testing.T, dag *construct.Graph) *resources.CloudFormationCreateUpdateStackAction {
	pipeline, ok := construct.GetResourceOfType[*resources.CodePipeline](dag, construct.ResourceId{
		Provider: resources.AWS_PROVIDER, Type: resources.CODEPIPELINE_TYPE, Name: "auth-pipeline",
	})
	require.True(t, ok)
	for _, stage := range pipeline.Stages {
		for _, action := range stage.Actions {
			if deploy, ok := action.(*resources.CloudFormationCreateUpdateStackAction); ok {
				return deploy
			}
		}
	}
	t.Fatal("pipeline has no deploy action")
	return nil
}

func Test_ImageTagParameter_SharedAcrossStacks(t *testing.T) {
	assert := assert.New(t)
	app := buildDefault(t)

	pipelineStack, _ := app.Stack("EcsPipelineStack")
	deploy := findDeployAction(t, pipelineStack.Graph)

	service := stackTemplate(t, app, "EcsStackDeployedInPipeline")
	if !assert.Len(deploy.ParameterOverrides, 1) {
		return
	}
	for name := range deploy.ParameterOverrides {
		assert.Contains(service.Parameters, name, "overridden parameter must be declared by the service stack")
	}
	assert.Len(service.Parameters, 1)
}

func Test_ServiceStack(t *testing.T) {
	assert := assert.New(t)
	app := buildDefault(t)
	serviceStack, _ := app.Stack("EcsStackDeployedInPipeline")

	constructtest.ResourcesExpectation{
		Nodes: []string{
			"aws:vpc:Vpc",
			"aws:iam_role:auth-api-role",
			"aws:ecs_cluster:auth-cluster",
			"aws:ecs_task_definition:auth-task",
			"aws:ecs_service:auth-svc",
			"aws:load_balancer:auth-nlb",
			"aws:load_balancer_listener:auth-nlb:auth-listener",
			"aws:target_group:auth-tg",
			"aws:security_group:search-sg",
			"aws:parameter:AuthEcrRepositoryTag",
			"aws:output:ClusterARN",
		},
		Deps: []constructtest.StringDep{
			{Source: "aws:ecs_service:auth-svc", Target: "aws:ecs_cluster:auth-cluster"},
			{Source: "aws:ecs_service:auth-svc", Target: "aws:ecs_task_definition:auth-task"},
			{Source: "aws:ecs_service:auth-svc", Target: "aws:load_balancer_listener:auth-nlb:auth-listener"},
			{Source: "aws:ecs_task_definition:auth-task", Target: "aws:iam_role:auth-api-role"},
			{Source: "aws:ecs_task_definition:auth-task", Target: "aws:parameter:AuthEcrRepositoryTag"},
			{Source: "aws:output:ClusterARN", Target: "aws:ecs_cluster:auth-cluster"},
		},
		AssertSubset: true,
	}.Assert(t, serviceStack.Graph)

	tmpl := stackTemplate(t, app, "EcsStackDeployedInPipeline")
	cluster := construct.ResourceId{Provider: resources.AWS_PROVIDER, Type: resources.ECS_CLUSTER_TYPE, Name: "auth-cluster"}
	assert.Equal(map[string]any{
		"Value": map[string]any{"Fn::GetAtt": []any{cloudformation.LogicalId(cluster), "Arn"}},
	}, tmpl.Outputs[ClusterArnOutput])

	taskDef := onlyResource(t, tmpl, "AWS::ECS::TaskDefinition")
	assert.Equal("256", taskDef.Properties["Cpu"])
	assert.Equal("512", taskDef.Properties["Memory"])
	assert.Equal(taskDef.Properties["ExecutionRoleArn"], taskDef.Properties["TaskRoleArn"])
	container := taskDef.Properties["ContainerDefinitions"].([]any)[0].(map[string]any)
	assert.Equal("auth-container", container["Name"])
	assert.Equal(map[string]any{"Fn::Sub": []any{
		"${AWS::AccountId}.dkr.ecr.${AWS::Region}.${AWS::URLSuffix}/auth-ecr-repository:${Tag}",
		map[string]any{"Tag": map[string]any{"Ref": "AuthEcrRepositoryTag"}},
	}}, container["Image"])

	svc := onlyResource(t, tmpl, "AWS::ECS::Service")
	awsvpc := svc.Properties["NetworkConfiguration"].(map[string]any)["AwsvpcConfiguration"].(map[string]any)
	assert.Equal("ENABLED", awsvpc["AssignPublicIp"])
	var publicSubnets []any
	for _, az := range []string{"1", "2"} {
		id := construct.ResourceId{Provider: resources.AWS_PROVIDER, Type: resources.SUBNET_TYPE, Namespace: "Vpc", Name: "Vpc-public-" + az}
		publicSubnets = append(publicSubnets, map[string]any{"Ref": cloudformation.LogicalId(id)})
	}
	assert.Equal(publicSubnets, awsvpc["Subnets"])

	lb := onlyResource(t, tmpl, "AWS::ElasticLoadBalancingV2::LoadBalancer")
	assert.Equal("network", lb.Properties["Type"])
	assert.Equal("internal", lb.Properties["Scheme"])

	assert.Len(resourcesOfType(tmpl, "AWS::EC2::NatGateway"), 2)
	assert.Len(resourcesOfType(tmpl, "AWS::ApplicationAutoScaling::ScalingPolicy"), 1)
}

func Test_ServiceStack_SecurityGroup(t *testing.T) {
	assert := assert.New(t)
	app := buildDefault(t)
	serviceStack, _ := app.Stack("EcsStackDeployedInPipeline")

	sg, ok := construct.GetResourceOfType[*resources.SecurityGroup](serviceStack.Graph, construct.ResourceId{
		Provider: resources.AWS_PROVIDER, Type: resources.SECURITY_GROUP_TYPE, Name: "search-sg",
	})
	if !assert.True(ok) {
		return
	}
	assert.Equal([]string{"0.0.0.0/0 tcp 80", "0.0.0.0/0 tcp 8080"}, sg.IngressRuleSummary())
	assert.True(sg.AllowAllOutbound)
}

func Test_DatabaseStack(t *testing.T) {
	assert := assert.New(t)
	app := buildDefault(t)
	databaseStack, _ := app.Stack("AuthDatabaseStack")

	sg, ok := construct.GetResourceOfType[*resources.SecurityGroup](databaseStack.Graph, construct.ResourceId{
		Provider: resources.AWS_PROVIDER, Type: resources.SECURITY_GROUP_TYPE, Name: "auth-db-sg",
	})
	if assert.True(ok) {
		assert.Equal([]string{
			"0.0.0.0/0 tcp 3306",
			"::/0 tcp 3306",
			"auth-db-sg all",
		}, sg.IngressRuleSummary(), "the default port rule is already allowed")
	}

	subnetGroup, ok := construct.GetResourceOfType[*resources.RdsSubnetGroup](databaseStack.Graph, construct.ResourceId{
		Provider: resources.AWS_PROVIDER, Type: resources.RDS_SUBNET_GROUP_TYPE, Name: "auth-user-subnets",
	})
	if assert.True(ok) && assert.Len(subnetGroup.Subnets, 2) {
		for _, subnet := range subnetGroup.Subnets {
			assert.Equal(resources.PublicSubnet, subnet.Type)
		}
	}

	tmpl := stackTemplate(t, app, "AuthDatabaseStack")
	assert.Empty(resourcesOfType(tmpl, "AWS::EC2::NatGateway"))
	assert.Empty(tmpl.Parameters)

	db := onlyResource(t, tmpl, "AWS::RDS::DBInstance")
	assert.Equal("mysql", db.Properties["Engine"])
	assert.Equal("8.0.28", db.Properties["EngineVersion"])
	assert.Equal("db.t2.micro", db.Properties["DBInstanceClass"])
	assert.Equal("user", db.Properties["DBName"])
	assert.Equal(true, db.Properties["PubliclyAccessible"])
	assert.Equal("{{resolve:secretsmanager:auth-db-pw:SecretString:::}}", db.Properties["MasterUserPassword"])

	dbId := construct.ResourceId{Provider: resources.AWS_PROVIDER, Type: resources.RDS_INSTANCE_TYPE, Name: "auth-user"}
	assert.Equal(map[string]any{
		"Value":       map[string]any{"Fn::GetAtt": []any{cloudformation.LogicalId(dbId), "Endpoint.Address"}},
		"Description": "hostname of the database endpoint",
	}, tmpl.Outputs["authdbEndpoint"])
}

func Test_Synthesis_Deterministic(t *testing.T) {
	assert := assert.New(t)
	render := func() map[string]string {
		app := buildDefault(t)
		out := make(map[string]string)
		for _, s := range app.Stacks() {
			tmpl, err := s.Template()
			require.NoError(t, err)
			for _, format := range []cloudformation.Format{cloudformation.JSON, cloudformation.YAML} {
				content, err := tmpl.Marshal(format)
				require.NoError(t, err)
				out[cloudformation.TemplateFileName(s.Name, format)] = string(content)
			}
		}
		return out
	}
	first, second := render(), render()
	assert.Len(first, 6)
	assert.Equal(first, second)
}
