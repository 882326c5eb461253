package extract

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/comprehend/types"

	cfg "github.com/joeott/docpipeline/config"
	"github.com/joeott/docpipeline/pkg/logger"
)

// Comprehend's synchronous DetectEntities caps input at 100KB of UTF-8;
// chunk sizes stay far under that, but the guard keeps a misconfigured
// chunker from producing opaque service errors.
const maxComprehendBytes = 100 * 1024

// ComprehendExtractor calls AWS Comprehend's entity detection per chunk.
type ComprehendExtractor struct {
	client   *comprehend.Client
	language types.LanguageCode
	logger   logger.Logger
}

var _ Extractor = (*ComprehendExtractor)(nil)

func NewComprehendExtractor(ctx context.Context, log logger.Logger) (*ComprehendExtractor, error) {
	awsCfg := cfg.GetAWSConfig()

	creds := credentials.NewStaticCredentialsProvider(awsCfg.AccessKey, awsCfg.SecretKey, "")
	loaded, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(awsCfg.Region),
		awsconfig.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	return &ComprehendExtractor{
		client:   comprehend.NewFromConfig(loaded),
		language: types.LanguageCodeEn,
		logger:   log,
	}, nil
}

func (e *ComprehendExtractor) ExtractEntities(ctx context.Context, text string) ([]Mention, error) {
	if len(text) > maxComprehendBytes {
		return nil, fmt.Errorf("chunk of %d bytes exceeds comprehend limit", len(text))
	}

	out, err := e.client.DetectEntities(ctx, &comprehend.DetectEntitiesInput{
		Text:         aws.String(text),
		LanguageCode: e.language,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to detect entities: %w", err)
	}

	mentions := make([]Mention, 0, len(out.Entities))
	for _, ent := range out.Entities {
		mentions = append(mentions, Mention{
			Text:       aws.ToString(ent.Text),
			Type:       string(ent.Type),
			Confidence: float64(aws.ToFloat32(ent.Score)),
		})
	}
	return mentions, nil
}
