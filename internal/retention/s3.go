package retention

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sync/atomic"
	"time"

	"github.com/agentoven/psymarket/pkg/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// putObjectAPI is the subset of the S3 client the archiver uses.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config locates the archive bucket.
type S3Config struct {
	Bucket string
	Prefix string
	Region string
	// Endpoint targets S3-compatible storage such as MinIO.
	Endpoint string
	Compress bool
}

// S3Archiver uploads expired runs as JSONL objects:
//
//	s3://{bucket}/{prefix}/analyses/2026-02-20T15-04-05Z-0001.jsonl[.gz]
type S3Archiver struct {
	client putObjectAPI
	cfg    S3Config
	seq    atomic.Uint64
}

// NewS3Archiver builds an archiver from the default AWS credential chain.
func NewS3Archiver(ctx context.Context, cfg S3Config) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 archive bucket is required")
	}
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Archiver(client, cfg), nil
}

func newS3Archiver(client putObjectAPI, cfg S3Config) *S3Archiver {
	return &S3Archiver{client: client, cfg: cfg}
}

func (a *S3Archiver) Kind() string { return "s3" }

func (a *S3Archiver) ArchiveRuns(ctx context.Context, runs []models.AnalysisRun) (string, error) {
	var buf bytes.Buffer
	if err := encodeRuns(&buf, runs, a.cfg.Compress); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s-%04d.jsonl", time.Now().UTC().Format("2006-01-02T15-04-05Z"), a.seq.Add(1))
	contentType := "application/x-ndjson"
	if a.cfg.Compress {
		name += ".gz"
		contentType = "application/gzip"
	}
	key := path.Join(a.cfg.Prefix, "analyses", name)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", a.cfg.Bucket, key, err)
	}

	uri := "s3://" + a.cfg.Bucket + "/" + key
	log.Debug().Str("uri", uri).Int("count", len(runs)).Msg("Archived analyses to S3")
	return uri, nil
}
