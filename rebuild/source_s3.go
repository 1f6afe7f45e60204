package rebuild

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/restitch/restitch/internal"
)

// S3ImageSource serves sectors out of a disk image object using ranged
// GETs, for images captured with dd and parked on object storage. The
// credentials come from RESTITCH_ACCESS_KEY/RESTITCH_SECRET_KEY or the
// ambient AWS environment.
type S3ImageSource struct {
	client  *s3.Client
	bucket  string
	key     string
	sectors int64
}

func NewS3ImageSource(ctx context.Context, conf *internal.Config) (*S3ImageSource, error) {
	var opts []func(*config.LoadOptions) error
	if conf.S3Region != "" {
		opts = append(opts, config.WithRegion(conf.S3Region))
	}
	if ak := os.Getenv("RESTITCH_ACCESS_KEY"); ak != "" {
		sk := os.Getenv("RESTITCH_SECRET_KEY")
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(ak, sk, "")))
	}
	if conf.S3Endpoint != "" {
		endpoint := conf.S3Endpoint
		opts = append(opts, config.WithEndpointResolverWithOptions(
			aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				if service == s3.ServiceID {
					return aws.Endpoint{URL: endpoint, SigningRegion: region}, nil
				}
				return aws.Endpoint{}, fmt.Errorf("unknown endpoint requested")
			}),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	head, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(conf.S3Bucket),
		Key:    aws.String(conf.S3Key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to head image object %s/%s: %w", conf.S3Bucket, conf.S3Key, err)
	}
	size := aws.ToInt64(head.ContentLength)
	logger.Infof("image object %s/%s: %s", conf.S3Bucket, conf.S3Key, internal.FormatBytes(uint64(size)))

	return &S3ImageSource{
		client:  client,
		bucket:  conf.S3Bucket,
		key:     conf.S3Key,
		sectors: size / SectorSize,
	}, nil
}

func (s *S3ImageSource) SectorCount() int64 { return s.sectors }

// Close exists for symmetry with DeviceSource; the S3 client holds no
// resources that outlive its requests.
func (s *S3ImageSource) Close() error { return nil }

func (s *S3ImageSource) ReadSector(ctx context.Context, addr int64) ([]byte, error) {
	if addr < 0 || addr >= s.sectors {
		return nil, internal.ErrSectorBounds
	}
	off := addr * SectorSize
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, off+SectorSize-1)),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()

	buf, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, err
	}
	if len(buf) != SectorSize {
		return nil, internal.ErrShortSector
	}
	return buf, nil
}
