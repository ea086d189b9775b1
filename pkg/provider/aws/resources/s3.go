package resources

import (
	"github.com/flab-reels/authcdk/pkg/construct"
	"github.com/flab-reels/authcdk/pkg/sanitization/aws"
)

const S3_BUCKET_TYPE = "s3_bucket"

var bucketSanitizer = aws.S3BucketSanitizer

type (
	S3Bucket struct {
		Name string
		// BucketName is the physical bucket name. Empty lets the provisioning engine generate a unique one.
		BucketName string
		Versioned  bool
	}

	S3BucketCreateParams struct {
		Name       string
		BucketName string
		Versioned  bool
	}
)

func (bucket *S3Bucket) Create(dag *construct.Graph, params S3BucketCreateParams) error {
	bucket.Name = bucketSanitizer.Apply(params.Name)
	if params.BucketName != "" {
		bucket.BucketName = bucketSanitizer.Apply(params.BucketName)
	}
	bucket.Versioned = params.Versioned
	return ensureUnique(dag, bucket)
}

func (bucket *S3Bucket) Id() construct.ResourceId {
	return construct.ResourceId{
		Provider: AWS_PROVIDER,
		Type:     S3_BUCKET_TYPE,
		Name:     bucket.Name,
	}
}

// GrantReadWrite lets role read, write and delete objects in the bucket.
func (bucket *S3Bucket) GrantReadWrite(role *IamRole) {
	role.Grant([]string{
		"s3:GetObject*",
		"s3:GetBucket*",
		"s3:List*",
		"s3:DeleteObject*",
		"s3:PutObject",
		"s3:Abort*",
	}, construct.ArnOf(bucket), construct.Join{
		Values: []any{construct.ArnOf(bucket), "/*"},
	})
}

// GrantRead lets role read objects from the bucket.
func (bucket *S3Bucket) GrantRead(role *IamRole) {
	role.Grant([]string{
		"s3:GetObject*",
		"s3:GetBucket*",
		"s3:List*",
	}, construct.ArnOf(bucket), construct.Join{
		Values: []any{construct.ArnOf(bucket), "/*"},
	})
}

func (bucket *S3Bucket) CfnType() string {
	return "AWS::S3::Bucket"
}

func (bucket *S3Bucket) CfnDeletionPolicy() string {
	return "Retain"
}

func (bucket *S3Bucket) CfnProperties() (map[string]any, error) {
	props := map[string]any{
		"BucketEncryption": map[string]any{
			"ServerSideEncryptionConfiguration": []any{
				map[string]any{
					"ServerSideEncryptionByDefault": map[string]any{"SSEAlgorithm": "aws:kms"},
				},
			},
		},
		"PublicAccessBlockConfiguration": map[string]any{
			"BlockPublicAcls":       true,
			"BlockPublicPolicy":     true,
			"IgnorePublicAcls":      true,
			"RestrictPublicBuckets": true,
		},
	}
	optional(props, "BucketName", bucket.BucketName)
	if bucket.Versioned {
		props["VersioningConfiguration"] = map[string]any{"Status": "Enabled"}
	}
	return props, nil
}
