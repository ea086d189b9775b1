package resources

import (
	"encoding/json"

	"github.com/flab-reels/authcdk/pkg/construct"
	"github.com/flab-reels/authcdk/pkg/sanitization/aws"
)

const (
	ECR_REPO_TYPE = "ecr_repo"
)

var repositorySanitizer = aws.EcrRepositorySanitizer

type (
	EcrRepository struct {
		Name            string
		ImageScanOnPush bool
		LifecycleRules  []LifecycleRule
	}

	// LifecycleRule expires images once more than MaxImageCount images with TagStatus exist.
	LifecycleRule struct {
		Priority      int
		Description   string
		TagStatus     string
		MaxImageCount int
	}

	RepoCreateParams struct {
		Name string
		// MaxImageCount adds a lifecycle rule keeping only the newest images. Zero keeps every image.
		MaxImageCount int
	}
)

func (repo *EcrRepository) Create(dag *construct.Graph, params RepoCreateParams) error {
	repo.Name = repositorySanitizer.Apply(params.Name)
	repo.ImageScanOnPush = true
	if params.MaxImageCount > 0 {
		repo.LifecycleRules = []LifecycleRule{{
			Priority:      1,
			Description:   "keep only the newest images",
			TagStatus:     "any",
			MaxImageCount: params.MaxImageCount,
		}}
	}
	return ensureUnique(dag, repo)
}

func (repo *EcrRepository) Id() construct.ResourceId {
	return construct.ResourceId{
		Provider: AWS_PROVIDER,
		Type:     ECR_REPO_TYPE,
		Name:     repo.Name,
	}
}

// RepositoryUri is the registry address of the repository, without a tag.
func (repo *EcrRepository) RepositoryUri() construct.IaCValue {
	return construct.AttrOf(repo, REPOSITORY_URI_IAC_VALUE)
}

// GrantPullPush lets role push images to and pull images from the repository.
func (repo *EcrRepository) GrantPullPush(role *IamRole) {
	role.Grant([]string{"ecr:GetAuthorizationToken"}, "*")
	role.Grant([]string{
		"ecr:BatchCheckLayerAvailability",
		"ecr:GetDownloadUrlForLayer",
		"ecr:BatchGetImage",
		"ecr:PutImage",
		"ecr:InitiateLayerUpload",
		"ecr:UploadLayerPart",
		"ecr:CompleteLayerUpload",
	}, construct.ArnOf(repo))
}

// GrantPull lets role pull images from the repository.
func (repo *EcrRepository) GrantPull(role *IamRole) {
	role.Grant([]string{"ecr:GetAuthorizationToken"}, "*")
	role.Grant([]string{
		"ecr:BatchCheckLayerAvailability",
		"ecr:GetDownloadUrlForLayer",
		"ecr:BatchGetImage",
	}, construct.ArnOf(repo))
}

func (repo *EcrRepository) CfnType() string {
	return "AWS::ECR::Repository"
}

func (repo *EcrRepository) CfnDeletionPolicy() string {
	return "Retain"
}

func (repo *EcrRepository) CfnProperties() (map[string]any, error) {
	props := map[string]any{
		"RepositoryName": repo.Name,
		"ImageScanningConfiguration": map[string]any{
			"ScanOnPush": repo.ImageScanOnPush,
		},
	}
	if len(repo.LifecycleRules) > 0 {
		policy, err := repo.lifecyclePolicyText()
		if err != nil {
			return nil, err
		}
		props["LifecyclePolicy"] = map[string]any{"LifecyclePolicyText": policy}
	}
	return props, nil
}

func (repo *EcrRepository) lifecyclePolicyText() (string, error) {
	type (
		selection struct {
			TagStatus   string `json:"tagStatus"`
			CountType   string `json:"countType"`
			CountNumber int    `json:"countNumber"`
		}
		rule struct {
			RulePriority int               `json:"rulePriority"`
			Description  string            `json:"description,omitempty"`
			Selection    selection         `json:"selection"`
			Action       map[string]string `json:"action"`
		}
	)
	rules := make([]rule, 0, len(repo.LifecycleRules))
	for _, r := range repo.LifecycleRules {
		rules = append(rules, rule{
			RulePriority: r.Priority,
			Description:  r.Description,
			Selection: selection{
				TagStatus:   r.TagStatus,
				CountType:   "imageCountMoreThan",
				CountNumber: r.MaxImageCount,
			},
			Action: map[string]string{"type": "expire"},
		})
	}
	b, err := json.Marshal(map[string]any{"rules": rules})
	return string(b), err
}
