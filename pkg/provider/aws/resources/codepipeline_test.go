package resources

import (
	"testing"

	"github.com/flab-reels/authcdk/pkg/buildspec"
	"github.com/flab-reels/authcdk/pkg/construct"
	"github.com/flab-reels/authcdk/pkg/construct/constructtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPipeline struct {
	dag      *construct.Graph
	role     *IamRole
	bucket   *S3Bucket
	project  *CodeBuildProject
	source   *GitHubSourceAction
	build    *CodeBuildAction
	deploy   *CloudFormationCreateUpdateStackAction
	pipeline *CodePipeline
}

func newTestPipeline(t *testing.T) *testPipeline {
	require := require.New(t)
	tp := &testPipeline{dag: construct.NewGraph()}

	tp.role = &IamRole{}
	require.NoError(tp.role.Create(tp.dag, IamRoleCreateParams{Name: "pipeline-role", AssumedBy: "codepipeline.amazonaws.com"}))
	tp.bucket = &S3Bucket{}
	require.NoError(tp.bucket.Create(tp.dag, S3BucketCreateParams{Name: "artifacts"}))

	buildRole := &IamRole{}
	require.NoError(buildRole.Create(tp.dag, IamRoleCreateParams{Name: "build-role", AssumedBy: "codebuild.amazonaws.com"}))
	tp.project = &CodeBuildProject{}
	require.NoError(tp.project.Create(tp.dag, CodeBuildProjectCreateParams{
		Name:        "synth",
		ProjectName: "auth-cdk-codebuild",
		Role:        buildRole,
		Image:       "AMAZON_LINUX_2_4",
		BuildSpec: &buildspec.BuildSpec{
			Version: buildspec.Version,
			Phases:  buildspec.Phases{Build: &buildspec.Phase{Commands: []string{"make"}}},
		},
	}))

	sourceOutput := &Artifact{}
	buildOutput := &Artifact{Name: "synth-output"}
	tp.source = &GitHubSourceAction{
		Name:       "auth-pipeline-cdk",
		Owner:      "flab-reels",
		Repo:       "auth-cdk",
		Branch:     "master",
		OAuthToken: SecretsManagerValue("auth_demo_v6"),
		Output:     sourceOutput,
	}
	tp.build = &CodeBuildAction{
		Name:      "CdkCodeBuildAndSynth",
		Project:   tp.project,
		Input:     sourceOutput,
		Outputs:   []*Artifact{buildOutput},
		Namespace: "BuildVariables",
	}
	tp.deploy = &CloudFormationCreateUpdateStackAction{
		Name:               "CFN_Deploy",
		StackName:          "EcsStackDeployedInPipeline",
		TemplatePath:       buildOutput.AtPath("EcsStackDeployedInPipeline.template.json"),
		AdminPermissions:   true,
		ParameterOverrides: map[string]string{"AuthEcrRepositoryTag": tp.build.Variable("imageTag")},
	}
	return tp
}

func (tp *testPipeline) create(stages []PipelineStage) error {
	tp.pipeline = &CodePipeline{}
	return tp.pipeline.Create(tp.dag, CodePipelineCreateParams{
		Name:           "auth-pipeline",
		PipelineName:   "auth-pipeline",
		Role:           tp.role,
		ArtifactBucket: tp.bucket,
		Stages:         stages,
	})
}

func (tp *testPipeline) stages() []PipelineStage {
	return []PipelineStage{
		{Name: "Source", Actions: []PipelineAction{tp.source}},
		{Name: "Build", Actions: []PipelineAction{tp.build}},
		{Name: "Deploy", Actions: []PipelineAction{tp.deploy}},
	}
}

func Test_CodePipeline_Create(t *testing.T) {
	assert := assert.New(t)
	tp := newTestPipeline(t)

	if !assert.NoError(tp.create(tp.stages())) {
		return
	}
	constructtest.AddAllDependencies(t, tp.dag)

	assert.Equal("Artifact_Source_auth-pipeline-cdk", tp.source.Output.Name)
	assert.Equal("#{BuildVariables.imageTag}", tp.build.Variable("imageTag"))
	assert.NotNil(tp.deploy.DeploymentRole)

	constructtest.ResourcesExpectation{
		Nodes: []string{
			"aws:iam_role:auth-pipeline-Deploy-CFN_Deploy-role",
			"aws:codepipeline_webhook:auth-pipeline-Source-auth-pipeline-cdk-webhook",
		},
		Deps: []constructtest.StringDep{
			{Source: "aws:codepipeline:auth-pipeline", Target: "aws:iam_role:pipeline-role"},
			{Source: "aws:codepipeline:auth-pipeline", Target: "aws:s3_bucket:artifacts"},
			{Source: "aws:codepipeline:auth-pipeline", Target: "aws:codebuild_project:synth"},
			{Source: "aws:codepipeline:auth-pipeline", Target: "aws:iam_role:auth-pipeline-Deploy-CFN_Deploy-role"},
			{Source: "aws:codepipeline_webhook:auth-pipeline-Source-auth-pipeline-cdk-webhook", Target: "aws:codepipeline:auth-pipeline"},
			{Source: "aws:iam_role:pipeline-role", Target: "aws:iam_role:auth-pipeline-Deploy-CFN_Deploy-role"},
			{Source: "aws:iam_role:pipeline-role", Target: "aws:codebuild_project:synth"},
			{Source: "aws:iam_role:build-role", Target: "aws:s3_bucket:artifacts"},
		},
		AssertSubset: true,
	}.Assert(t, tp.dag)

	props, err := tp.pipeline.CfnProperties()
	if !assert.NoError(err) {
		return
	}
	stages := props["Stages"].([]any)
	assert.Len(stages, 3)
	deploy := stages[2].(map[string]any)["Actions"].([]any)[0].(map[string]any)
	config := deploy["Configuration"].(map[string]any)
	assert.Equal("synth-output::EcsStackDeployedInPipeline.template.json", config["TemplatePath"])
	assert.Equal(`{"AuthEcrRepositoryTag":"#{BuildVariables.imageTag}"}`, config["ParameterOverrides"])
	assert.Equal("CAPABILITY_NAMED_IAM", config["Capabilities"])
	assert.Equal([]any{map[string]any{"Name": "synth-output"}}, deploy["InputArtifacts"])

	source := stages[0].(map[string]any)["Actions"].([]any)[0].(map[string]any)
	assert.Equal(SecretsManagerValue("auth_demo_v6"), source["Configuration"].(map[string]any)["OAuthToken"])
	assert.Equal([]any{map[string]any{"Name": "Artifact_Source_auth-pipeline-cdk"}}, source["OutputArtifacts"])
}

func Test_CodePipeline_Validate(t *testing.T) {
	tests := []struct {
		name   string
		stages func(tp *testPipeline) []PipelineStage
	}{
		{
			name: "single stage",
			stages: func(tp *testPipeline) []PipelineStage {
				return []PipelineStage{{Name: "Source", Actions: []PipelineAction{tp.source}}}
			},
		},
		{
			name: "build in first stage",
			stages: func(tp *testPipeline) []PipelineStage {
				return []PipelineStage{
					{Name: "Source", Actions: []PipelineAction{tp.source, tp.build}},
					{Name: "Deploy", Actions: []PipelineAction{tp.deploy}},
				}
			},
		},
		{
			name: "source after first stage",
			stages: func(tp *testPipeline) []PipelineStage {
				return []PipelineStage{
					{Name: "Source", Actions: []PipelineAction{tp.source}},
					{Name: "Build", Actions: []PipelineAction{tp.build, &GitHubSourceAction{Name: "late", Output: &Artifact{}}}},
				}
			},
		},
		{
			name: "input not produced yet",
			stages: func(tp *testPipeline) []PipelineStage {
				return []PipelineStage{
					{Name: "Source", Actions: []PipelineAction{tp.source}},
					{Name: "Deploy", Actions: []PipelineAction{tp.deploy}},
					{Name: "Build", Actions: []PipelineAction{tp.build}},
				}
			},
		},
		{
			name: "empty stage",
			stages: func(tp *testPipeline) []PipelineStage {
				return []PipelineStage{
					{Name: "Source", Actions: []PipelineAction{tp.source}},
					{Name: "Build"},
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tp := newTestPipeline(t)
			assert.Error(t, tp.create(tt.stages(tp)))
		})
	}
}

func Test_CodeBuildAction_DefaultNamespace(t *testing.T) {
	action := &CodeBuildAction{Name: "auth-docker-build-action"}
	assert.Equal(t, "#{auth-docker-build-action_NS.imageTag}", action.Variable("imageTag"))
}
