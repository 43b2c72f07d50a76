package bootstrap

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/listing-lead-assistant/internal/config"
)

// LoadAWSConfig centralizes AWS SDK initialization so LocalStack and
// production share the same wiring.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	return config.LoadDefaultConfig(ctx, loaders...)
}

// BuildSQSClient returns an SQS client honoring AWS_ENDPOINT_OVERRIDE.
func BuildSQSClient(awsCfg aws.Config, cfg *appconfig.Config) *sqs.Client {
	endpoint := strings.TrimSpace(cfg.AWSEndpointOverride)
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}
