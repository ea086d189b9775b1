package resources

import (
	"fmt"
	"sort"

	"github.com/flab-reels/authcdk/pkg/buildspec"
	"github.com/flab-reels/authcdk/pkg/construct"
	"github.com/flab-reels/authcdk/pkg/sanitization/aws"
)

const CODEBUILD_PROJECT_TYPE = "codebuild_project"

var codeBuildProjectSanitizer = aws.CodeBuildProjectSanitizer

// buildImages maps the curated Linux build images to their registry names.
var buildImages = map[string]string{
	"AMAZON_LINUX_2":   "aws/codebuild/amazonlinux2-x86_64-standard:3.0",
	"AMAZON_LINUX_2_2": "aws/codebuild/amazonlinux2-x86_64-standard:2.0",
	"AMAZON_LINUX_2_3": "aws/codebuild/amazonlinux2-x86_64-standard:3.0",
	"AMAZON_LINUX_2_4": "aws/codebuild/amazonlinux2-x86_64-standard:4.0",
	"AMAZON_LINUX_2_5": "aws/codebuild/amazonlinux2-x86_64-standard:5.0",
	"STANDARD_5_0":     "aws/codebuild/standard:5.0",
	"STANDARD_6_0":     "aws/codebuild/standard:6.0",
	"STANDARD_7_0":     "aws/codebuild/standard:7.0",
}

const (
	EnvironmentVariablePlaintext      = "PLAINTEXT"
	EnvironmentVariableSecretsManager = "SECRETS_MANAGER"
)

type (
	CodeBuildProject struct {
		Name        string
		ProjectName string
		Role        *IamRole
		Image       string
		ComputeType string
		Privileged  bool
		// EnvironmentVariables hold plain strings, IaCValues, or SecretValues.
		EnvironmentVariables map[string]any
		BuildSpec            *buildspec.BuildSpec
		LogGroup             *LogGroup
	}

	CodeBuildProjectCreateParams struct {
		Name        string
		ProjectName string
		Role        *IamRole
		Image       string
		ComputeType string
		Privileged  bool
		BuildSpec   *buildspec.BuildSpec
		LogGroup    *LogGroup
	}
)

func (project *CodeBuildProject) Create(dag *construct.Graph, params CodeBuildProjectCreateParams) error {
	project.Name = codeBuildProjectSanitizer.Apply(params.Name)
	project.ProjectName = codeBuildProjectSanitizer.Apply(params.ProjectName)
	if params.Role == nil {
		return fmt.Errorf("codebuild project %s has no service role", project.Name)
	}
	if params.BuildSpec == nil {
		return fmt.Errorf("codebuild project %s has no build spec", project.Name)
	}
	image, err := BuildImage(params.Image)
	if err != nil {
		return err
	}
	project.Role = params.Role
	project.Image = image
	project.ComputeType = params.ComputeType
	if project.ComputeType == "" {
		project.ComputeType = "BUILD_GENERAL1_SMALL"
	}
	project.Privileged = params.Privileged
	project.BuildSpec = params.BuildSpec
	project.LogGroup = params.LogGroup
	project.EnvironmentVariables = make(map[string]any)

	project.grantLogs()
	return ensureUnique(dag, project)
}

func (project *CodeBuildProject) Id() construct.ResourceId {
	return construct.ResourceId{
		Provider: AWS_PROVIDER,
		Type:     CODEBUILD_PROJECT_TYPE,
		Name:     project.Name,
	}
}

// BuildImage resolves one of the curated image names to its registry name.
func BuildImage(name string) (string, error) {
	image, ok := buildImages[name]
	if !ok {
		return "", fmt.Errorf("unknown build image %s", name)
	}
	return image, nil
}

// AddEnvironmentVariable sets a variable of the build environment. Secret values are granted to the project role.
func (project *CodeBuildProject) AddEnvironmentVariable(name string, value any) {
	project.EnvironmentVariables[name] = value
	if secret, ok := value.(SecretValue); ok {
		secret.GrantRead(project.Role)
	}
}

// grantLogs lets the build write its own logs, scoped to the project's log groups.
func (project *CodeBuildProject) grantLogs() {
	if project.LogGroup != nil {
		project.LogGroup.GrantWrite(project.Role)
		return
	}
	logs := construct.Sub{
		Template: "arn:${AWS::Partition}:logs:${AWS::Region}:${AWS::AccountId}:log-group:/aws/codebuild/" + project.ProjectName,
	}
	project.Role.Grant([]string{"logs:CreateLogGroup", "logs:CreateLogStream", "logs:PutLogEvents"},
		logs, construct.Sub{Template: logs.Template + ":*"})
}

func (project *CodeBuildProject) CfnType() string {
	return "AWS::CodeBuild::Project"
}

func (project *CodeBuildProject) CfnProperties() (map[string]any, error) {
	spec, err := project.BuildSpec.Marshal()
	if err != nil {
		return nil, fmt.Errorf("could not render build spec of %s: %w", project.Name, err)
	}

	names := make([]string, 0, len(project.EnvironmentVariables))
	for name := range project.EnvironmentVariables {
		names = append(names, name)
	}
	sort.Strings(names)
	vars := make([]any, 0, len(names))
	for _, name := range names {
		v := map[string]any{"Name": name, "Type": EnvironmentVariablePlaintext}
		switch value := project.EnvironmentVariables[name].(type) {
		case SecretValue:
			v["Type"] = EnvironmentVariableSecretsManager
			ref := value.SecretName
			if value.JsonKey != "" {
				ref += ":" + value.JsonKey
			}
			v["Value"] = ref
		default:
			v["Value"] = value
		}
		vars = append(vars, v)
	}

	env := map[string]any{
		"Type":                     "LINUX_CONTAINER",
		"Image":                    project.Image,
		"ComputeType":              project.ComputeType,
		"PrivilegedMode":           project.Privileged,
		"ImagePullCredentialsType": "CODEBUILD",
	}
	if len(vars) > 0 {
		env["EnvironmentVariables"] = vars
	}

	props := map[string]any{
		"Name":        project.ProjectName,
		"ServiceRole": construct.ArnOf(project.Role),
		"Environment": env,
		"Source": map[string]any{
			"Type":      "CODEPIPELINE",
			"BuildSpec": spec,
		},
		"Artifacts": map[string]any{"Type": "CODEPIPELINE"},
	}
	if project.LogGroup != nil {
		props["LogsConfig"] = map[string]any{
			"CloudWatchLogs": map[string]any{
				"Status":    "ENABLED",
				"GroupName": construct.RefOf(project.LogGroup),
			},
		}
	}
	return props, nil
}
