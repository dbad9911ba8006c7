package blob

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/portfoliocms/assetsync/internal/config"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
)

// S3Deps wraps the S3 client, uploader and presigner used for asset objects.
type S3Deps struct {
	Client    *s3.Client
	Uploader  *manager.Uploader
	Presigner *s3.PresignClient

	endpoint      string
	publicBaseURL string
	presignExpire time.Duration
}

type UploadedMeta struct {
	Bucket string
	Key    string
	ETag   string
	SHA256 string
	MIME   string
	SizeB  int64
}

type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

func NewS3(ctx context.Context, cfg *config.Config) (*S3Deps, error) {
	if cfg.S3.Region == "" || cfg.S3.Bucket == "" {
		return nil, errors.New("s3 region and bucket are required")
	}

	opts := []func(*awscfg.LoadOptions) error{awscfg.WithRegion(cfg.S3.Region)}
	if cfg.S3.AccessKey != "" && cfg.S3.SecretKey != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3.AccessKey, cfg.S3.SecretKey, ""),
		))
	}

	acfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.Telemetry.Enabled {
		otelaws.AppendMiddlewares(&acfg.APIOptions)
	}

	client := s3.NewFromConfig(acfg, func(o *s3.Options) {
		if cfg.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
		}
		o.UsePathStyle = cfg.S3.UsePathStyle || cfg.S3.Endpoint != ""
	})

	expire := time.Duration(cfg.S3.PresignExpireSec) * time.Second
	if expire <= 0 {
		expire = 15 * time.Minute
	}

	return &S3Deps{
		Client:        client,
		Uploader:      manager.NewUploader(client),
		Presigner:     s3.NewPresignClient(client),
		endpoint:      strings.TrimRight(cfg.S3.Endpoint, "/"),
		publicBaseURL: strings.TrimRight(cfg.S3.PublicBaseURL, "/"),
		presignExpire: expire,
	}, nil
}

// Put uploads body under bucket/key.
func (u *S3Deps) Put(ctx context.Context, bucket, key string, body []byte, contentType string) (*UploadedMeta, error) {
	if key == "" {
		return nil, errors.New("object key is required")
	}
	sum := sha256.Sum256(body)

	out, err := u.Uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"sha256": hex.EncodeToString(sum[:]),
		},
	})
	if err != nil {
		return nil, err
	}

	etag := ""
	if out.ETag != nil {
		etag = strings.Trim(*out.ETag, `"`)
	}
	return &UploadedMeta{
		Bucket: bucket,
		Key:    key,
		ETag:   etag,
		SHA256: hex.EncodeToString(sum[:]),
		MIME:   contentType,
		SizeB:  int64(len(body)),
	}, nil
}

func (u *S3Deps) Delete(ctx context.Context, bucket, key string) error {
	_, err := u.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return err
}

func (u *S3Deps) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := u.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// List returns every object under prefix.
func (u *S3Deps) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	p := s3.NewListObjectsV2Paginator(u.Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, o := range page.Contents {
			info := ObjectInfo{Key: aws.ToString(o.Key), Size: aws.ToInt64(o.Size)}
			if o.LastModified != nil {
				info.LastModified = *o.LastModified
			}
			objects = append(objects, info)
		}
	}
	return objects, nil
}

func (u *S3Deps) PresignGet(ctx context.Context, bucket, key string) (string, error) {
	req, err := u.Presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(u.presignExpire))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// PublicURL builds the durable public locator for bucket/key. The configured
// public base wins; otherwise the object is addressed path-style on the endpoint.
func (u *S3Deps) PublicURL(bucket, key string) string {
	base := u.publicBaseURL
	if base == "" {
		base = u.endpoint
	}
	return JoinURL(base, bucket, key)
}

// JoinURL joins base with escaped bucket and key segments.
func JoinURL(base, bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(bucket) + "/" + strings.Join(segments, "/")
}
