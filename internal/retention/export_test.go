package retention

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutObjectFunc adapts a function to the S3 client the archiver uses.
type PutObjectFunc func(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)

func (f PutObjectFunc) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return f(ctx, in, optFns...)
}

// NewS3ArchiverWithClient builds an archiver around client.
func NewS3ArchiverWithClient(client PutObjectFunc, cfg S3Config) *S3Archiver {
	return newS3Archiver(client, cfg)
}
