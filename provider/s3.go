package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/fioncat/dbutils/types"
)

// Extra config keys understood by S3 mounts.
const (
	S3ConfigEndpoint  = "fs.s3a.endpoint"
	S3ConfigRegion    = "fs.s3a.region"
	S3ConfigAccessKey = "fs.s3a.access.key"
	S3ConfigSecretKey = "fs.s3a.secret.key"
	S3ConfigPathStyle = "fs.s3a.path.style.access"
)

const (
	s3DirectoryMarker    = "/"
	s3DeleteObjectsBatch = 1000
)

type s3Provider struct {
	client *s3.Client
	bucket string

	encryptionType string
}

var _ types.WritableProvider = (*s3Provider)(nil)

// s3Options is the merged view of the config file, the mount's extra configs
// and the credentials embedded in the source URI.
type s3Options struct {
	types.S3Config

	encryptionType string
}

func newS3(ctx context.Context, bucket string, opts *s3Options) (*s3Provider, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})

	return &s3Provider{
		client:         client,
		bucket:         bucket,
		encryptionType: opts.encryptionType,
	}, nil
}

func (p *s3Provider) Stat(ctx context.Context, name string) (*types.Entry, error) {
	key := s3Key(name)
	if key == "" {
		return &types.Entry{Path: "/", IsDir: true}, nil
	}

	head, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		ent := &types.Entry{
			Path: name,
			Name: path.Base(name),
			Size: aws.ToInt64(head.ContentLength),
		}
		if head.LastModified != nil {
			ent.ModTime = *head.LastModified
		}
		return ent, nil
	}
	if !isS3NotFound(err) {
		return nil, convertS3Error(name, err)
	}

	// No object, it is a directory if any key lives below it.
	out, err := p.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(p.bucket),
		Prefix:  aws.String(key + s3DirectoryMarker),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return nil, convertS3Error(name, err)
	}
	if len(out.Contents) == 0 && len(out.CommonPrefixes) == 0 {
		return nil, fmt.Errorf("%w: %q", types.ErrNotFound, name)
	}
	return &types.Entry{Path: name, Name: path.Base(name), IsDir: true}, nil
}

func (p *s3Provider) ReadDir(ctx context.Context, name string) ([]*types.Entry, error) {
	ent, err := p.Stat(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ent.IsDir {
		return nil, fmt.Errorf("%w: %q", types.ErrNotADirectory, name)
	}

	prefix := s3Key(name)
	if prefix != "" {
		prefix += s3DirectoryMarker
	}

	var ents []*types.Entry
	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(p.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String(s3DirectoryMarker),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, convertS3Error(name, err)
		}
		for _, cp := range page.CommonPrefixes {
			dirName := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), s3DirectoryMarker)
			ents = append(ents, &types.Entry{
				Path:  path.Join(name, dirName),
				Name:  dirName,
				IsDir: true,
			})
		}
		for _, obj := range page.Contents {
			fileName := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if fileName == "" {
				// The directory marker itself.
				continue
			}
			ent := &types.Entry{
				Path: path.Join(name, fileName),
				Name: fileName,
				Size: aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				ent.ModTime = *obj.LastModified
			}
			ents = append(ents, ent)
		}
	}
	return ents, nil
}

func (p *s3Provider) ReadFile(ctx context.Context, name string, limit int64) ([]byte, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(s3Key(name)),
	}
	if limit > 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=0-%d", limit-1))
	}

	out, err := p.client.GetObject(ctx, input)
	if err != nil {
		var apiErr smithy.APIError
		if limit > 0 && errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange" {
			// Ranged read of an empty object.
			return []byte{}, nil
		}
		return nil, convertS3Error(name, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3 object %q: %w", name, err)
	}
	return data, nil
}

func (p *s3Provider) WriteFile(ctx context.Context, name string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(s3Key(name)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	p.applyEncryption(input)

	_, err := p.client.PutObject(ctx, input)
	if err != nil {
		return convertS3Error(name, err)
	}
	return nil
}

func (p *s3Provider) MkdirAll(ctx context.Context, name string) error {
	key := s3Key(name)
	if key == "" {
		return nil
	}
	ent, err := p.Stat(ctx, name)
	switch {
	case err == nil:
		if !ent.IsDir {
			return fmt.Errorf("%w: %q is a file", types.ErrNotADirectory, name)
		}
		return nil
	case !errors.Is(err, types.ErrNotFound):
		return err
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key + s3DirectoryMarker),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
	}
	p.applyEncryption(input)
	_, err = p.client.PutObject(ctx, input)
	if err != nil {
		return convertS3Error(name, err)
	}
	return nil
}

func (p *s3Provider) Remove(ctx context.Context, name string, recursive bool) error {
	ent, err := p.Stat(ctx, name)
	if err != nil {
		return err
	}
	if !ent.IsDir {
		_, err = p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(s3Key(name)),
		})
		if err != nil {
			return convertS3Error(name, err)
		}
		return nil
	}

	prefix := s3Key(name) + s3DirectoryMarker
	var keys []s3types.ObjectIdentifier
	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return convertS3Error(name, err)
		}
		for _, obj := range page.Contents {
			if !recursive && aws.ToString(obj.Key) != prefix {
				return fmt.Errorf("%w: directory %q is not empty, remove it recursively", types.ErrInvalidArgument, name)
			}
			keys = append(keys, s3types.ObjectIdentifier{Key: obj.Key})
		}
	}

	for start := 0; start < len(keys); start += s3DeleteObjectsBatch {
		end := min(start+s3DeleteObjectsBatch, len(keys))
		out, err := p.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(p.bucket),
			Delete: &s3types.Delete{Objects: keys[start:end], Quiet: aws.Bool(true)},
		})
		if err != nil {
			return convertS3Error(name, err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("delete %d object(s) under %q failed, first: %s: %s", len(out.Errors), name,
				aws.ToString(first.Key), aws.ToString(first.Message))
		}
	}
	return nil
}

func (p *s3Provider) applyEncryption(input *s3.PutObjectInput) {
	switch {
	case p.encryptionType == "sse-s3":
		input.ServerSideEncryption = s3types.ServerSideEncryptionAes256
	case strings.HasPrefix(p.encryptionType, "sse-kms"):
		input.ServerSideEncryption = s3types.ServerSideEncryptionAwsKms
		if keyID, ok := strings.CutPrefix(p.encryptionType, "sse-kms:"); ok {
			input.SSEKMSKeyId = aws.String(keyID)
		}
	}
}

func s3Key(name string) string {
	return strings.Trim(path.Clean("/"+name), "/")
}

func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

func convertS3Error(name string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return fmt.Errorf("%w: %q", types.ErrNotFound, name)
		case "AccessDenied", "Forbidden":
			return fmt.Errorf("%w: %q", types.ErrPermission, name)
		}
	}
	return fmt.Errorf("s3 %q: %w", name, err)
}
