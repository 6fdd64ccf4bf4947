package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ecoproof-backend/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const evidenceURLTTL = 5 * time.Minute

// EvidenceConfig holds object storage settings for evidence photos
type EvidenceConfig struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// Endpoint points at an S3 compatible store; empty means AWS
	Endpoint string
}

// EvidenceService issues pre-signed upload URLs for submission photos
type EvidenceService struct {
	presign *s3.PresignClient
	cfg     EvidenceConfig
}

// NewEvidenceService creates a new evidence service
func NewEvidenceService(ctx context.Context, cfg EvidenceConfig) (*EvidenceService, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("evidence bucket is not configured")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &EvidenceService{
		presign: s3.NewPresignClient(client),
		cfg:     cfg,
	}, nil
}

// UploadRequest represents a request to get a pre-signed URL
type UploadRequest struct {
	ContentType string `json:"content_type"`
}

// UploadResponse carries the pre-signed URL and the photo URL to submit
type UploadResponse struct {
	UploadURL string `json:"upload_url"`
	ObjectKey string `json:"object_key"`
	PhotoURL  string `json:"photo_url"`
	ExpiresIn int    `json:"expires_in"`
}

// PresignUpload generates a pre-signed PUT URL for a user's evidence photo
func (s *EvidenceService) PresignUpload(ctx context.Context, userID, contentType string) (*UploadResponse, error) {
	if contentType == "" {
		contentType = "image/jpeg"
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, models.ErrInvalidInput.WithCause(errors.New("evidence must be an image"))
	}

	key := fmt.Sprintf("evidence/%s/%s", userID, uuid.New().String())

	request, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = evidenceURLTTL
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate pre-signed URL: %w", err)
	}

	return &UploadResponse{
		UploadURL: request.URL,
		ObjectKey: key,
		PhotoURL:  s.objectURL(key),
		ExpiresIn: int(evidenceURLTTL.Seconds()),
	}, nil
}

func (s *EvidenceService) objectURL(key string) string {
	if s.cfg.Endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.cfg.Endpoint, "/"), s.cfg.Bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
}
