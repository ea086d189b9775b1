package stacks

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/flab-reels/authcdk/pkg/buildspec"
	"github.com/flab-reels/authcdk/pkg/config"
	"github.com/flab-reels/authcdk/pkg/construct"
	"github.com/flab-reels/authcdk/pkg/infra/cloudformation"
	"github.com/flab-reels/authcdk/pkg/logging"
	"github.com/flab-reels/authcdk/pkg/provider/aws/resources"
)

const (
	SourceStage = "Source"
	BuildStage  = "Build"
	DeployStage = "Deploy"

	// RepositoryUriVariable is the build environment variable holding the registry address images are pushed to.
	RepositoryUriVariable = "REPOSITORY_URI"
)

// PipelineStack declares the CI/CD pipeline: a container registry, the image and synth builds, and a pipeline that
// checks out both repositories, builds them, then deploys the service stack from the synthesized template. The
// returned image is what the service stack runs; its tag parameter is filled in by the deploy action.
func PipelineStack(ctx context.Context, app *App) (*Stack, resources.TagParameterContainerImage, error) {
	cfg := app.Config.Pipeline
	stack := newStack(cfg.StackName, fmt.Sprintf("%s build and deployment pipeline", app.Config.AppName))
	dag := stack.Graph
	var image resources.TagParameterContainerImage

	format, err := cloudformation.ParseFormat(app.Config.TemplateFormat)
	if err != nil {
		return nil, image, err
	}

	repo := &resources.EcrRepository{}
	if err := repo.Create(dag, resources.RepoCreateParams{Name: cfg.RepositoryName, MaxImageCount: cfg.MaxImageCount}); err != nil {
		return nil, image, err
	}
	image = resources.NewTagParameterContainerImage(repo)

	imageSpec, err := renderBuildSpec(cfg.ImageBuild, buildspec.ImageTemplate, buildspec.Context{
		ImageName: app.Config.Service.ContainerName,
	})
	if err != nil {
		return nil, image, err
	}
	imageProject, err := createBuildProject(dag, cfg.ImageBuild, imageSpec)
	if err != nil {
		return nil, image, err
	}
	imageProject.AddEnvironmentVariable(RepositoryUriVariable, repo.RepositoryUri())
	repo.GrantPullPush(imageProject.Role)

	synthSpec, err := renderBuildSpec(cfg.SynthBuild, buildspec.SynthTemplate, buildspec.Context{
		OutputDir:      app.Config.OutDir,
		ConfigFile:     synthConfigFile(ctx, app.Config),
		TemplateFormat: string(format),
		StackName:      app.Config.Service.StackName,
	})
	if err != nil {
		return nil, image, err
	}
	synthProject, err := createBuildProject(dag, cfg.SynthBuild, synthSpec)
	if err != nil {
		return nil, image, err
	}

	bucket := &resources.S3Bucket{}
	if err := bucket.Create(dag, resources.S3BucketCreateParams{Name: cfg.Name + "-artifacts"}); err != nil {
		return nil, image, err
	}
	role := &resources.IamRole{}
	err = role.Create(dag, resources.IamRoleCreateParams{
		Name:      cfg.Name + "-role",
		AssumedBy: "codepipeline.amazonaws.com",
	})
	if err != nil {
		return nil, image, err
	}

	appSource := githubSource(cfg, cfg.AppSource)
	infraSource := githubSource(cfg, cfg.InfraSource)
	appBuild := &resources.CodeBuildAction{
		Name:    cfg.ImageBuild.ActionName,
		Project: imageProject,
		Input:   appSource.Output,
	}
	synthOutput := &resources.Artifact{Name: "cdkCodeBuildOutput"}
	synthBuild := &resources.CodeBuildAction{
		Name:    cfg.SynthBuild.ActionName,
		Project: synthProject,
		Input:   infraSource.Output,
		Outputs: []*resources.Artifact{synthOutput},
	}
	deploy := &resources.CloudFormationCreateUpdateStackAction{
		Name:             cfg.DeployActionName,
		StackName:        app.Config.Service.StackName,
		TemplatePath:     synthOutput.AtPath(cloudformation.TemplateFileName(app.Config.Service.StackName, format)),
		AdminPermissions: cfg.AdminPermissions,
		ParameterOverrides: map[string]string{
			image.TagParameterName: appBuild.Variable(buildspec.DefaultImageTagVariable),
		},
	}

	pipeline := &resources.CodePipeline{}
	err = pipeline.Create(dag, resources.CodePipelineCreateParams{
		Name:           cfg.Name,
		PipelineName:   cfg.Name,
		Role:           role,
		ArtifactBucket: bucket,
		Stages: []resources.PipelineStage{
			{Name: SourceStage, Actions: []resources.PipelineAction{appSource, infraSource}},
			{Name: BuildStage, Actions: []resources.PipelineAction{appBuild, synthBuild}},
			{Name: DeployStage, Actions: []resources.PipelineAction{deploy}},
		},
	})
	if err != nil {
		return nil, image, err
	}
	pipeline.RestartExecutionOnUpdate = cfg.RestartExecutionOnUpdate

	output := &resources.StackOutput{}
	err = output.Create(dag, resources.StackOutputCreateParams{
		Name:        "RepositoryUri",
		Value:       repo.RepositoryUri(),
		Description: "registry address of the service image",
	})
	if err != nil {
		return nil, image, err
	}

	return stack, image, stack.linkResources(ctx)
}

// synthConfigFile is the config the synth build reads, relative to the infrastructure repository. Without an
// explicit synth_build.config_file it is the relative path the config was read from.
func synthConfigFile(ctx context.Context, appCfg config.Application) string {
	if f := appCfg.Pipeline.SynthBuild.ConfigFile; f != "" {
		return filepath.ToSlash(f)
	}
	src := appCfg.SourceFile
	if src == "" {
		return ""
	}
	if filepath.IsAbs(src) {
		logging.GetLogger(ctx).Sugar().Warnf(
			"config %s is an absolute path, the synth build will use the default config (set pipeline.synth_build.config_file)",
			src,
		)
		return ""
	}
	return filepath.ToSlash(filepath.Clean(src))
}

func githubSource(cfg config.Pipeline, src config.GitHubSource) *resources.GitHubSourceAction {
	return &resources.GitHubSourceAction{
		Name:       src.ActionName,
		Owner:      cfg.Owner(src),
		Repo:       src.Repo,
		Branch:     cfg.SourceBranch(src),
		OAuthToken: resources.SecretsManagerValue(cfg.OAuthTokenSecret),
		Output:     &resources.Artifact{},
	}
}

// renderBuildSpec renders the project's own build spec file if it has one, otherwise the built-in template.
func renderBuildSpec(project config.BuildProject, template string, ctx buildspec.Context) (*buildspec.BuildSpec, error) {
	ctx.RuntimeVersions = project.RuntimeVersions
	if project.BuildSpecFile != "" {
		return buildspec.Load(project.BuildSpecFile, ctx)
	}
	return buildspec.Render(template, ctx)
}

func createBuildProject(dag *construct.Graph, project config.BuildProject, spec *buildspec.BuildSpec) (*resources.CodeBuildProject, error) {
	role := &resources.IamRole{}
	err := role.Create(dag, resources.IamRoleCreateParams{
		Name:      project.ProjectName + "-role",
		AssumedBy: "codebuild.amazonaws.com",
	})
	if err != nil {
		return nil, err
	}
	p := &resources.CodeBuildProject{}
	err = p.Create(dag, resources.CodeBuildProjectCreateParams{
		Name:        project.ProjectName,
		ProjectName: project.ProjectName,
		Role:        role,
		Image:       project.Image,
		ComputeType: project.ComputeType,
		Privileged:  project.Privileged,
		BuildSpec:   spec,
	})
	return p, err
}
