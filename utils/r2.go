package utils

import (
	"context"
	"fmt"
	"mime/multipart"
	"strings"

	ledgerconfig "coin-rewards-ledger/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter is the part of the S3 client the receipt store uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// R2ReceiptStore uploads deposit receipts to a Cloudflare R2 bucket.
type R2ReceiptStore struct {
	Client     ObjectPutter
	Bucket     string
	CDNBaseURL string
}

// NewR2ReceiptStore builds an S3 client against the account's R2 endpoint.
func NewR2ReceiptStore(ctx context.Context, cfg *ledgerconfig.Config) (*R2ReceiptStore, error) {
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.R2AccountID)

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.R2AccessKeyID, cfg.R2AccessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})

	cdn := cfg.CDNBaseURL
	if cdn == "" {
		cdn = endpoint + "/" + cfg.R2Bucket
	}
	return &R2ReceiptStore{
		Client:     client,
		Bucket:     cfg.R2Bucket,
		CDNBaseURL: strings.TrimRight(cdn, "/"),
	}, nil
}

// UploadReceipt stores the file under key and returns its public URL.
func (r *R2ReceiptStore) UploadReceipt(ctx context.Context, fileHeader *multipart.FileHeader, key string) (string, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = r.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.Bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(fileHeader.Size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to R2: %w", err)
	}

	return fmt.Sprintf("%s/%s", r.CDNBaseURL, key), nil
}
