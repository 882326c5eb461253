package config

import (
	"os"
	"sync"
)

var (
	awsOnce   sync.Once
	awsConfig *AWSConfig
)

// AWSConfig covers the Textract and Comprehend clients. BucketName is
// the S3 bucket Textract reads submitted documents from.
type AWSConfig struct {
	Region     string
	Endpoint   string
	AccessKey  string
	SecretKey  string
	BucketName string
}

func GetAWSConfig() *AWSConfig {
	awsOnce.Do(func() {
		loadEnv()

		awsConfig = &AWSConfig{
			Region:     getEnv("AWS_REGION", "us-east-1"),
			Endpoint:   os.Getenv("AWS_ENDPOINT"),
			AccessKey:  os.Getenv("AWS_ACCESS_KEY"),
			SecretKey:  os.Getenv("AWS_SECRET_KEY"),
			BucketName: os.Getenv("AWS_BUCKET_NAME"),
		}
	})
	return awsConfig
}
