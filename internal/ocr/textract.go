package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	cfg "github.com/joeott/docpipeline/config"
	"github.com/joeott/docpipeline/pkg/logger"
)

// TextractClient drives AWS Textract's asynchronous text-detection API.
// Submitted documents must already live in the configured S3 bucket; the
// blob ref is the object key.
type TextractClient struct {
	client *textract.Client
	bucket string
	logger logger.Logger
}

var _ Client = (*TextractClient)(nil)

func NewTextractClient(ctx context.Context, log logger.Logger) (*TextractClient, error) {
	awsCfg := cfg.GetAWSConfig()

	creds := credentials.NewStaticCredentialsProvider(awsCfg.AccessKey, awsCfg.SecretKey, "")
	loaded, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(awsCfg.Region),
		awsconfig.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	return &TextractClient{
		client: textract.NewFromConfig(loaded),
		bucket: awsCfg.BucketName,
		logger: log,
	}, nil
}

func (t *TextractClient) SubmitJob(ctx context.Context, blobRef string) (string, error) {
	out, err := t.client.StartDocumentTextDetection(ctx, &textract.StartDocumentTextDetectionInput{
		DocumentLocation: &types.DocumentLocation{
			S3Object: &types.S3Object{
				Bucket: aws.String(t.bucket),
				Name:   aws.String(blobRef),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to start text detection: %w", err)
	}

	t.logger.Info("Submitted Textract job",
		logger.String("blobRef", blobRef),
		logger.String("jobId", aws.ToString(out.JobId)),
	)
	return aws.ToString(out.JobId), nil
}

func (t *TextractClient) GetJobStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	var (
		lines     []string
		nextToken *string
		status    types.JobStatus
		message   string
	)

	for {
		out, err := t.client.GetDocumentTextDetection(ctx, &textract.GetDocumentTextDetectionInput{
			JobId:     aws.String(jobID),
			NextToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get job status: %w", err)
		}

		status = out.JobStatus
		message = aws.ToString(out.StatusMessage)

		if status != types.JobStatusSucceeded && status != types.JobStatusPartialSuccess {
			break
		}
		for _, block := range out.Blocks {
			if block.BlockType == types.BlockTypeLine && block.Text != nil {
				lines = append(lines, *block.Text)
			}
		}
		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}

	switch status {
	case types.JobStatusInProgress:
		return &JobStatus{State: JobInProgress}, nil
	case types.JobStatusSucceeded, types.JobStatusPartialSuccess:
		return &JobStatus{State: JobSucceeded, Text: strings.Join(lines, "\n")}, nil
	default:
		if message == "" {
			message = fmt.Sprintf("textract job ended with status %s", status)
		}
		return &JobStatus{State: JobFailed, Error: message}, nil
	}
}
