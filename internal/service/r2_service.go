package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	cfg "github.com/maheshrc27/vantage/configs"
)

var ErrStorageDisabled = errors.New("object storage is not configured")

// ObjectStore keeps media handed to platforms and archived inbound
// payloads.
type ObjectStore interface {
	Enabled() bool
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

type R2Service struct {
	config cfg.R2

	once   sync.Once
	client *s3.Client
	err    error
}

func NewR2Service(c cfg.R2) *R2Service {
	return &R2Service{config: c}
}

func (r *R2Service) Enabled() bool {
	return r.config.AccountID != "" && r.config.BucketName != ""
}

func (r *R2Service) r2Client(ctx context.Context) (*s3.Client, error) {
	r.once.Do(func() {
		awsCfg, err := config.LoadDefaultConfig(ctx,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(r.config.AccessKey, r.config.SecretKey, "")),
			config.WithRegion("auto"),
		)
		if err != nil {
			slog.Info(err.Error())
			r.err = err
			return
		}
		r.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r.config.AccountID))
		})
	})
	return r.client, r.err
}

// Put uploads body under key and returns the public URL platforms will
// fetch it from.
func (r *R2Service) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	if !r.Enabled() {
		return "", ErrStorageDisabled
	}
	client, err := r.r2Client(ctx)
	if err != nil {
		return "", err
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(r.config.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	}
	if _, err := client.PutObject(ctx, input); err != nil {
		slog.Info(err.Error())
		return "", err
	}
	return r.PublicURL(key), nil
}

func (r *R2Service) PublicURL(key string) string {
	return r.config.PublicURL + "/" + key
}
