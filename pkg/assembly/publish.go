package assembly

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/alitto/pond"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/flab-reels/authcdk/pkg/closenicely"
	"github.com/flab-reels/authcdk/pkg/config"
	"github.com/flab-reels/authcdk/pkg/io"
	awsSanitizer "github.com/flab-reels/authcdk/pkg/sanitization/aws"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

//go:generate mockgen -source=./publish.go --destination=./publish_mock_test.go --package=assembly

type (
	// Uploader is the subset of [manager.Uploader] used to publish.
	Uploader interface {
		Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
	}

	// Publisher uploads a written assembly to an S3 bucket.
	Publisher struct {
		Uploader    Uploader
		Bucket      string
		Prefix      string
		Pattern     string
		Concurrency int
	}

	PublishResult struct {
		// Keys are the object keys uploaded, in path order of the local files.
		Keys  []string
		Bytes int64
	}
)

// NewPublisher creates a publisher using the default AWS credential chain.
func NewPublisher(ctx context.Context, cfg config.Publish) (*Publisher, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("no publish bucket configured")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not load AWS config: %w", err)
	}
	return &Publisher{
		Uploader:    manager.NewUploader(s3.NewFromConfig(awsCfg)),
		Bucket:      cfg.Bucket,
		Prefix:      cfg.Prefix,
		Pattern:     config.ValueOrDefault(cfg.Pattern, "**/*"),
		Concurrency: cfg.Concurrency,
	}, nil
}

// ObjectKey is the key a file at the slash-separated relative path is uploaded under.
func (p *Publisher) ObjectKey(relPath string) string {
	prefix := strings.Trim(p.Prefix, "/")
	key := path.Clean(path.Join(prefix, strings.TrimLeft(relPath, "/")))
	return awsSanitizer.S3ObjectKeySanitizer.Apply(key)
}

// Publish uploads the files under dir matching Pattern. The first failed upload cancels the uploads not yet started.
func (p *Publisher) Publish(ctx context.Context, dir string) (PublishResult, error) {
	log := zap.L().Named("publish")
	refs, err := io.Glob(dir, p.Pattern)
	if err != nil {
		return PublishResult{}, fmt.Errorf("could not list files to publish: %w", err)
	}
	if len(refs) == 0 {
		log.Sugar().Warnf("no files in %s match %s, nothing to publish", dir, p.Pattern)
		return PublishResult{}, nil
	}

	workers := p.Concurrency
	if workers < 1 {
		workers = 1
	}
	pool := pond.New(workers, len(refs), pond.Context(ctx))
	defer pool.StopAndWait()
	group, groupCtx := pool.GroupContext(ctx)

	var total atomic.Int64
	var uploaded atomic.Int32
	keys := make([]string, len(refs))
	for i, ref := range refs {
		ref := ref
		key := p.ObjectKey(ref.Path())
		keys[i] = key
		group.Submit(func() error {
			if err := p.upload(groupCtx, ref, key, &total); err != nil {
				return err
			}
			n := uploaded.Inc()
			log.Debug("uploaded object",
				zap.String("key", key),
				zap.Int32("done", n),
				zap.Int("of", len(refs)),
			)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return PublishResult{Bytes: total.Load()}, err
	}
	log.Sugar().Infof("published %d files (%d bytes) to s3://%s/%s", len(keys), total.Load(), p.Bucket, strings.Trim(p.Prefix, "/"))
	return PublishResult{Keys: keys, Bytes: total.Load()}, nil
}

func (p *Publisher) upload(ctx context.Context, ref *io.FileRef, key string, total *atomic.Int64) error {
	f, err := ref.Open()
	if err != nil {
		return err
	}
	defer closenicely.OrDebug(f, zap.String("path", ref.Path()))

	_, err = p.Uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.Bucket),
		Key:         aws.String(key),
		Body:        &io.CountingReader{Delegate: f, Total: total},
		ContentType: aws.String(contentType(key)),
	})
	if err != nil {
		return fmt.Errorf("could not upload %s to s3://%s/%s: %w", ref.Path(), p.Bucket, key, err)
	}
	return nil
}

func contentType(key string) string {
	switch path.Ext(key) {
	case ".json":
		return "application/json"
	case ".yaml", ".yml":
		return "application/x-yaml"
	}
	return "application/octet-stream"
}
