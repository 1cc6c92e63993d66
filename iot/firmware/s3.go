package firmware

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/goccy/go-json"

	"github.com/relabs-tech/provisio/core/logger"
)

// S3Configuration is the configuration for the S3 firmware catalog.
type S3Configuration struct {
	AWSBucketName string
	AWSRegion     string
	AccessID      string
	AccessKey     string
	KeyPrefix     string
}

// S3Catalog is a Catalog over descriptor objects in an S3 bucket. The
// expected key layout is {prefix}/{deviceType}/{version}.json, where each
// object is a JSON encoded Descriptor.
type S3Catalog struct {
	config aws.Config
	bucket string
	prefix string
}

// NewS3Catalog returns a new S3 catalog.
func NewS3Catalog(cfg S3Configuration) (*S3Catalog, error) {
	if cfg.AWSBucketName == "" {
		return nil, fmt.Errorf("AWSBucketName must not be empty")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		context.TODO(),
		awsconfig.WithRegion(cfg.AWSRegion),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessID, cfg.AccessKey, "")),
	)
	if err != nil {
		return nil, err
	}
	prefix := cfg.KeyPrefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	logger.Default().Debugln("S3 firmware catalog enabled")
	return &S3Catalog{config: awsCfg, bucket: cfg.AWSBucketName, prefix: prefix}, nil
}

// LatestFor implements Catalog. It lists the device type's descriptor keys,
// picks the highest semantic version and fetches that descriptor.
func (c *S3Catalog) LatestFor(ctx context.Context, deviceType string) (*Descriptor, error) {
	client := s3.NewFromConfig(c.config)

	prefix := c.prefix + deviceType + "/"

	var latestKey string
	var latestVersion *semver.Version
	var continuationToken *string
	for {
		output, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &c.bucket,
			Prefix:            &prefix,
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, fmt.Errorf("cannot list firmware for %s: %w", deviceType, err)
		}
		for _, object := range output.Contents {
			if object.Key == nil {
				continue
			}
			name := strings.TrimPrefix(*object.Key, prefix)
			name = strings.TrimSuffix(name, ".json")
			version, err := semver.NewVersion(name)
			if err != nil {
				continue
			}
			if latestVersion == nil || version.GreaterThan(latestVersion) {
				latestKey = *object.Key
				latestVersion = version
			}
		}
		if output.IsTruncated {
			continuationToken = output.NextContinuationToken
			continue
		}
		break
	}

	if latestKey == "" {
		return nil, nil
	}

	object, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &c.bucket,
		Key:    &latestKey,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot fetch firmware descriptor %s: %w", latestKey, err)
	}
	defer object.Body.Close()

	data, err := io.ReadAll(object.Body)
	if err != nil {
		return nil, err
	}
	descriptor := Descriptor{}
	if err := json.Unmarshal(data, &descriptor); err != nil {
		return nil, fmt.Errorf("corrupt firmware descriptor %s: %w", latestKey, err)
	}
	return &descriptor, nil
}
