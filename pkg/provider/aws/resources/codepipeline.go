package resources

import (
	"encoding/json"
	"fmt"

	"github.com/flab-reels/authcdk/pkg/construct"
	"github.com/flab-reels/authcdk/pkg/sanitization/aws"
	"go.uber.org/zap"
)

const (
	CODEPIPELINE_TYPE     = "codepipeline"
	PIPELINE_WEBHOOK_TYPE = "codepipeline_webhook"
)

var (
	pipelineSanitizer  = aws.CodePipelineSanitizer
	artifactSanitizer  = aws.PipelineArtifactSanitizer
	namespaceSanitizer = aws.PipelineNamespaceSanitizer
)

type (
	CodePipeline struct {
		Name           string
		PipelineName   string
		Role           *IamRole
		ArtifactBucket *S3Bucket
		Stages         []PipelineStage
		// RestartExecutionOnUpdate reruns the pipeline when its own declaration changes.
		RestartExecutionOnUpdate bool
	}

	PipelineStage struct {
		Name    string
		Actions []PipelineAction
	}

	// PipelineAction is one step of a stage.
	PipelineAction interface {
		ActionName() string
		category() string
		inputs() []*Artifact
		outputs() []*Artifact
		// bind grants the pipeline what the action needs and declares any supporting resources.
		bind(dag *construct.Graph, pipeline *CodePipeline, stage string) error
		declaration() (map[string]any, error)
	}

	// Artifact is a named bundle of files passed between actions. Unnamed artifacts are named after the action
	// producing them when the pipeline is created.
	Artifact struct {
		Name string
	}

	// ArtifactPath is a file inside an artifact, eg. a template produced by a build.
	ArtifactPath struct {
		Artifact *Artifact
		FileName string
	}

	CodePipelineCreateParams struct {
		Name           string
		PipelineName   string
		Role           *IamRole
		ArtifactBucket *S3Bucket
		Stages         []PipelineStage
	}

	// PipelineWebhook lets GitHub notify the pipeline of pushes instead of the pipeline polling for changes.
	PipelineWebhook struct {
		Name         string
		Pipeline     *CodePipeline
		TargetAction string
		Branch       string
		SecretToken  SecretValue
	}
)

const (
	categorySource = "Source"
	categoryBuild  = "Build"
	categoryDeploy = "Deploy"
)

func (pipeline *CodePipeline) Create(dag *construct.Graph, params CodePipelineCreateParams) error {
	pipeline.Name = pipelineSanitizer.Apply(params.Name)
	pipeline.PipelineName = pipelineSanitizer.Apply(params.PipelineName)
	if params.Role == nil || params.ArtifactBucket == nil {
		return fmt.Errorf("pipeline %s needs a role and an artifact bucket", pipeline.Name)
	}
	pipeline.Role = params.Role
	pipeline.ArtifactBucket = params.ArtifactBucket
	pipeline.Stages = make([]PipelineStage, 0, len(params.Stages))
	for _, stage := range params.Stages {
		stage.Name = pipelineSanitizer.Apply(stage.Name)
		pipeline.Stages = append(pipeline.Stages, stage)
	}

	pipeline.nameArtifacts()
	if err := pipeline.validate(); err != nil {
		return err
	}
	if err := ensureUnique(dag, pipeline); err != nil {
		return err
	}

	pipeline.ArtifactBucket.GrantReadWrite(pipeline.Role)
	for _, stage := range pipeline.Stages {
		for _, action := range stage.Actions {
			if err := action.bind(dag, pipeline, stage.Name); err != nil {
				return fmt.Errorf("could not bind action %s of stage %s: %w", action.ActionName(), stage.Name, err)
			}
		}
	}
	return nil
}

func (pipeline *CodePipeline) Id() construct.ResourceId {
	return construct.ResourceId{
		Provider: AWS_PROVIDER,
		Type:     CODEPIPELINE_TYPE,
		Name:     pipeline.Name,
	}
}

// nameArtifacts names every unnamed output artifact after the stage and action producing it.
func (pipeline *CodePipeline) nameArtifacts() {
	for _, stage := range pipeline.Stages {
		for _, action := range stage.Actions {
			for _, artifact := range action.outputs() {
				if artifact.Name == "" {
					artifact.Name = artifactSanitizer.Apply(fmt.Sprintf("Artifact_%s_%s", stage.Name, action.ActionName()))
				}
			}
		}
	}
}

// validate checks the stage layout the pipeline service enforces: source actions only (and exclusively) in the first
// stage, unique action and artifact names, and every input produced by an earlier stage.
func (pipeline *CodePipeline) validate() error {
	if len(pipeline.Stages) < 2 {
		return fmt.Errorf("pipeline %s must have at least two stages", pipeline.Name)
	}
	produced := make(map[string]struct{})
	actionNames := make(map[string]struct{})
	for i, stage := range pipeline.Stages {
		if len(stage.Actions) == 0 {
			return fmt.Errorf("stage %s of pipeline %s has no actions", stage.Name, pipeline.Name)
		}
		var stageOutputs []string
		for _, action := range stage.Actions {
			if _, ok := actionNames[action.ActionName()]; ok {
				return fmt.Errorf("duplicate action %s in pipeline %s", action.ActionName(), pipeline.Name)
			}
			actionNames[action.ActionName()] = struct{}{}

			isSource := action.category() == categorySource
			if i == 0 && !isSource {
				return fmt.Errorf("first stage %s may only contain source actions, found %s", stage.Name, action.ActionName())
			}
			if i > 0 && isSource {
				return fmt.Errorf("source action %s must be in the first stage", action.ActionName())
			}
			for _, in := range action.inputs() {
				if _, ok := produced[in.Name]; !ok {
					return fmt.Errorf("action %s reads artifact %q which no earlier stage produces", action.ActionName(), in.Name)
				}
			}
			for _, out := range action.outputs() {
				if _, ok := produced[out.Name]; ok {
					return fmt.Errorf("artifact %s is produced twice", out.Name)
				}
				stageOutputs = append(stageOutputs, out.Name)
			}
		}
		for _, out := range stageOutputs {
			produced[out] = struct{}{}
		}
	}
	return nil
}

func (pipeline *CodePipeline) CfnType() string {
	return "AWS::CodePipeline::Pipeline"
}

func (pipeline *CodePipeline) CfnProperties() (map[string]any, error) {
	stages := make([]any, 0, len(pipeline.Stages))
	for _, stage := range pipeline.Stages {
		actions := make([]any, 0, len(stage.Actions))
		for _, action := range stage.Actions {
			decl, err := action.declaration()
			if err != nil {
				return nil, fmt.Errorf("action %s: %w", action.ActionName(), err)
			}
			decl["Name"] = action.ActionName()
			decl["RunOrder"] = 1
			if ins := artifactRefs(action.inputs()); len(ins) > 0 {
				decl["InputArtifacts"] = ins
			}
			if outs := artifactRefs(action.outputs()); len(outs) > 0 {
				decl["OutputArtifacts"] = outs
			}
			actions = append(actions, decl)
		}
		stages = append(stages, map[string]any{
			"Name":    stage.Name,
			"Actions": actions,
		})
	}
	props := map[string]any{
		"RoleArn": construct.ArnOf(pipeline.Role),
		"ArtifactStore": map[string]any{
			"Type":     "S3",
			"Location": construct.RefOf(pipeline.ArtifactBucket),
		},
		"Stages":                   stages,
		"RestartExecutionOnUpdate": pipeline.RestartExecutionOnUpdate,
	}
	optional(props, "Name", pipeline.PipelineName)
	return props, nil
}

func artifactRefs(artifacts []*Artifact) []any {
	refs := make([]any, 0, len(artifacts))
	for _, a := range artifacts {
		refs = append(refs, map[string]any{"Name": a.Name})
	}
	return refs
}

func nonNil(artifacts ...*Artifact) []*Artifact {
	var out []*Artifact
	for _, a := range artifacts {
		if a != nil {
			out = append(out, a)
		}
	}
	return out
}

func actionTypeId(category, owner, provider string) map[string]any {
	return map[string]any{
		"Category": category,
		"Owner":    owner,
		"Provider": provider,
		"Version":  "1",
	}
}

// AtPath returns the location of fileName inside the artifact.
func (a *Artifact) AtPath(fileName string) ArtifactPath {
	return ArtifactPath{Artifact: a, FileName: fileName}
}

// Location is the `artifact::file` form the deploy actions expect.
func (p ArtifactPath) Location() string {
	return p.Artifact.Name + "::" + p.FileName
}

// GitHubSourceAction checks out Branch of Owner/Repo whenever it is pushed to.
type GitHubSourceAction struct {
	Name       string
	Owner      string
	Repo       string
	Branch     string
	OAuthToken SecretValue
	Output     *Artifact
	// Poll checks for changes periodically instead of registering a webhook.
	Poll bool
}

func (a *GitHubSourceAction) ActionName() string { return pipelineSanitizer.Apply(a.Name) }
func (a *GitHubSourceAction) category() string { return categorySource }
func (a *GitHubSourceAction) inputs() []*Artifact { return nil }
func (a *GitHubSourceAction) outputs() []*Artifact { return nonNil(a.Output) }

func (a *GitHubSourceAction) bind(dag *construct.Graph, pipeline *CodePipeline, stage string) error {
	if a.Output == nil {
		return fmt.Errorf("source action has no output artifact")
	}
	if a.Poll {
		return nil
	}
	webhook := &PipelineWebhook{}
	return webhook.Create(dag, PipelineWebhookCreateParams{
		Name:         fmt.Sprintf("%s-%s-%s-webhook", pipeline.Name, stage, a.ActionName()),
		Pipeline:     pipeline,
		TargetAction: a.ActionName(),
		Branch:       a.Branch,
		SecretToken:  a.OAuthToken,
	})
}

func (a *GitHubSourceAction) declaration() (map[string]any, error) {
	if a.Owner == "" || a.Repo == "" || a.Branch == "" {
		return nil, fmt.Errorf("github source needs an owner, repo and branch")
	}
	return map[string]any{
		"ActionTypeId": actionTypeId(categorySource, "ThirdParty", "GitHub"),
		"Configuration": map[string]any{
			"Owner":                a.Owner,
			"Repo":                 a.Repo,
			"Branch":               a.Branch,
			"OAuthToken":           a.OAuthToken,
			"PollForSourceChanges": a.Poll,
		},
	}, nil
}

// CodeBuildAction runs Project on Input.
type CodeBuildAction struct {
	Name    string
	Project *CodeBuildProject
	Input   *Artifact
	Outputs []*Artifact
	// Namespace publishes the build's exported variables. Defaults to the action name.
	Namespace string
}

func (a *CodeBuildAction) ActionName() string { return pipelineSanitizer.Apply(a.Name) }
func (a *CodeBuildAction) category() string { return categoryBuild }
func (a *CodeBuildAction) inputs() []*Artifact { return nonNil(a.Input) }
func (a *CodeBuildAction) outputs() []*Artifact { return nonNil(a.Outputs...) }

// VariableNamespace is the namespace the action's exported variables are published under.
func (a *CodeBuildAction) VariableNamespace() string {
	if a.Namespace != "" {
		return namespaceSanitizer.Apply(a.Namespace)
	}
	return namespaceSanitizer.Apply(a.Name + "_NS")
}

// Variable references an exported variable of the build, resolved when the pipeline runs.
func (a *CodeBuildAction) Variable(name string) string {
	return fmt.Sprintf("#{%s.%s}", a.VariableNamespace(), name)
}

func (a *CodeBuildAction) bind(dag *construct.Graph, pipeline *CodePipeline, stage string) error {
	if a.Project == nil || a.Input == nil {
		return fmt.Errorf("build action needs a project and an input artifact")
	}
	pipeline.Role.Grant([]string{"codebuild:BatchGetBuilds", "codebuild:StartBuild", "codebuild:StopBuild"},
		construct.ArnOf(a.Project))
	pipeline.ArtifactBucket.GrantReadWrite(a.Project.Role)
	return nil
}

func (a *CodeBuildAction) declaration() (map[string]any, error) {
	return map[string]any{
		"ActionTypeId": actionTypeId(categoryBuild, "AWS", "CodeBuild"),
		"Configuration": map[string]any{
			"ProjectName": construct.RefOf(a.Project),
		},
		"Namespace": a.VariableNamespace(),
	}, nil
}

// CloudFormationCreateUpdateStackAction creates StackName from TemplatePath, or updates it if it exists.
type CloudFormationCreateUpdateStackAction struct {
	Name         string
	StackName    string
	TemplatePath ArtifactPath
	// AdminPermissions gives the deployment role full access, so any resource the template declares can be created.
	AdminPermissions bool
	// ParameterOverrides are passed to the stack as parameters. Values may reference action variables.
	ParameterOverrides map[string]string
	// DeploymentRole is created when the pipeline binds the action.
	DeploymentRole *IamRole
}

func (a *CloudFormationCreateUpdateStackAction) ActionName() string { return pipelineSanitizer.Apply(a.Name) }
func (a *CloudFormationCreateUpdateStackAction) category() string { return categoryDeploy }
func (a *CloudFormationCreateUpdateStackAction) inputs() []*Artifact {
	return nonNil(a.TemplatePath.Artifact)
}
func (a *CloudFormationCreateUpdateStackAction) outputs() []*Artifact { return nil }

func (a *CloudFormationCreateUpdateStackAction) bind(dag *construct.Graph, pipeline *CodePipeline, stage string) error {
	if a.TemplatePath.Artifact == nil || a.StackName == "" {
		return fmt.Errorf("deploy action needs a stack name and a template path")
	}
	role := &IamRole{}
	err := role.Create(dag, IamRoleCreateParams{
		Name:      fmt.Sprintf("%s-%s-%s-role", pipeline.Name, stage, a.ActionName()),
		AssumedBy: "cloudformation.amazonaws.com",
	})
	if err != nil {
		return err
	}
	if a.AdminPermissions {
		role.Grant([]string{"*"}, "*")
	}
	pipeline.ArtifactBucket.GrantRead(role)
	a.DeploymentRole = role

	stackArn := construct.Sub{
		Template: "arn:${AWS::Partition}:cloudformation:${AWS::Region}:${AWS::AccountId}:stack/" + a.StackName + "/*",
	}
	pipeline.Role.Grant([]string{"iam:PassRole"}, construct.ArnOf(role))
	pipeline.Role.Grant([]string{
		"cloudformation:CreateStack",
		"cloudformation:DescribeStack*",
		"cloudformation:GetStackPolicy",
		"cloudformation:GetTemplate*",
		"cloudformation:SetStackPolicy",
		"cloudformation:UpdateStack",
		"cloudformation:ValidateTemplate",
	}, stackArn)
	return nil
}

func (a *CloudFormationCreateUpdateStackAction) declaration() (map[string]any, error) {
	if a.DeploymentRole == nil {
		return nil, fmt.Errorf("deploy action was never bound to a pipeline")
	}
	config := map[string]any{
		"ActionMode":   "CREATE_UPDATE",
		"StackName":    a.StackName,
		"Capabilities": "CAPABILITY_NAMED_IAM",
		"RoleArn":      construct.ArnOf(a.DeploymentRole),
		"TemplatePath": a.TemplatePath.Location(),
	}
	if len(a.ParameterOverrides) > 0 {
		// encoding/json sorts map keys, so the overrides are stable
		overrides, err := json.Marshal(a.ParameterOverrides)
		if err != nil {
			return nil, err
		}
		config["ParameterOverrides"] = string(overrides)
	}
	return map[string]any{
		"ActionTypeId":  actionTypeId(categoryDeploy, "AWS", "CloudFormation"),
		"Configuration": config,
	}, nil
}

type PipelineWebhookCreateParams struct {
	Name         string
	Pipeline     *CodePipeline
	TargetAction string
	Branch       string
	SecretToken  SecretValue
}

func (webhook *PipelineWebhook) Create(dag *construct.Graph, params PipelineWebhookCreateParams) error {
	webhook.Name = pipelineSanitizer.Apply(params.Name)
	webhook.Pipeline = params.Pipeline
	webhook.TargetAction = params.TargetAction
	webhook.Branch = params.Branch
	webhook.SecretToken = params.SecretToken
	zap.S().Debugf("registering webhook %s for %s on branch %s", webhook.Name, webhook.TargetAction, webhook.Branch)
	return ensureUnique(dag, webhook)
}

func (webhook *PipelineWebhook) Id() construct.ResourceId {
	return construct.ResourceId{
		Provider: AWS_PROVIDER,
		Type:     PIPELINE_WEBHOOK_TYPE,
		Name:     webhook.Name,
	}
}

func (webhook *PipelineWebhook) CfnType() string {
	return "AWS::CodePipeline::Webhook"
}

func (webhook *PipelineWebhook) CfnProperties() (map[string]any, error) {
	return map[string]any{
		"Authentication": "GITHUB_HMAC",
		"AuthenticationConfiguration": map[string]any{
			"SecretToken": webhook.SecretToken,
		},
		"Filters": []any{
			map[string]any{
				"JsonPath":    "$.ref",
				"MatchEquals": "refs/heads/{Branch}",
			},
		},
		"TargetAction":           webhook.TargetAction,
		"TargetPipeline":         construct.RefOf(webhook.Pipeline),
		"TargetPipelineVersion":  1,
		"RegisterWithThirdParty": true,
	}, nil
}
