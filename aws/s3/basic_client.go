package s3

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"
)

// NewBasicClient uses the default AWS credential chain.
func NewBasicClient(b Bucket) (Uploader, error) {
	awsConfig := aws.NewConfig()
	awsConfig.Region = aws.String(b.Region)
	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, errors.Wrap(err, "error creating AWS session")
	}
	return NewBasicClientWithAPI(b, s3.New(sess)), nil
}

func NewBasicClientWithAPI(b Bucket, api s3iface.S3API) Uploader {
	return &basicClient{
		bucket: b.Name,
		region: b.Region,
		prefix: b.Prefix,
		api:    api,
	}
}

type basicClient struct {
	region string
	bucket string
	prefix string
	api    s3iface.S3API
}

func (s *basicClient) Put(ctx context.Context, key string, data []byte) error {
	return s.BufferPut(ctx, key, bytes.NewReader(data))
}

func (s *basicClient) BufferPut(ctx context.Context, key string, dataBuf io.ReadSeeker) error {
	_, err := s.api.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.getKeyWithPrefix(key)),
		Body:   dataBuf,
	})
	if err != nil {
		return errors.Wrapf(err, "error putting s3://%v/%v", s.bucket, s.getKeyWithPrefix(key))
	}
	return nil
}

func (s *basicClient) getKeyWithPrefix(key string) string {
	if s.prefix != "" {
		return strings.TrimRight(s.prefix, "/") + "/" + key // ensure trailing slash after prefix.
	}
	return key
}
