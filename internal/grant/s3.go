// Package grant issues short-lived read URLs for stored video objects.
package grant

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultTTL is how long a download URL stays usable.
const DefaultTTL = 15 * time.Minute

// Grant is a time-boxed, read-only URL for one object.
type Grant struct {
	URL       string
	ExpiresAt time.Time
}

// Issuer signs read URLs. Signing is local; no object is fetched.
type Issuer interface {
	SignReadURL(ctx context.Context, objectName string, ttl time.Duration) (Grant, error)
}

// PresignAPI is the subset of *s3.PresignClient used here.
type PresignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Issuer presigns GetObject requests against one bucket.
type S3Issuer struct {
	presigner PresignAPI
	bucket    string
	now       func() time.Time
}

// NewS3Issuer creates an issuer for bucket.
func NewS3Issuer(presigner PresignAPI, bucket string) *S3Issuer {
	return &S3Issuer{presigner: presigner, bucket: bucket, now: time.Now}
}

func (s *S3Issuer) SignReadURL(ctx context.Context, objectName string, ttl time.Duration) (Grant, error) {
	if objectName == "" {
		return Grant{}, errors.New("empty object name")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	issuedAt := s.now()

	presigned, err := s.presigner.PresignGetObject(
		ctx,
		&s3.GetObjectInput{
			Bucket:                     aws.String(s.bucket),
			Key:                        aws.String(objectName),
			ResponseContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", path.Base(objectName))),
		},
		s3.WithPresignExpires(ttl),
	)
	if err != nil {
		return Grant{}, fmt.Errorf("failed to presign %s/%s: %w", s.bucket, objectName, err)
	}

	return Grant{URL: presigned.URL, ExpiresAt: issuedAt.Add(ttl)}, nil
}
