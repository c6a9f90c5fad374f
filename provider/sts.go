package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/fioncat/dbutils/types"
)

type stsRoleAssumer struct {
	cfg *types.S3Config

	client *sts.Client
}

// NewSTS returns a RoleAssumer backed by AWS STS. The client is created on
// first use so that workspaces without AWS access still open.
func NewSTS(cfg *types.Config) types.RoleAssumer {
	return &stsRoleAssumer{cfg: cfg.S3}
}

func (a *stsRoleAssumer) AssumeRole(ctx context.Context, role, session string) (map[string]string, error) {
	if a.client == nil {
		loadOpts := []func(*awsconfig.LoadOptions) error{}
		if a.cfg != nil && a.cfg.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(a.cfg.Region))
		}
		if a.cfg != nil && a.cfg.AccessKey != "" {
			loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(a.cfg.AccessKey, a.cfg.SecretKey, ""),
			))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		a.client = sts.NewFromConfig(awsCfg)
	}

	out, err := a.client.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(role),
		RoleSessionName: aws.String(session),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "AccessDenied" {
			return nil, fmt.Errorf("%w: assume role %q", types.ErrPermission, role)
		}
		return nil, fmt.Errorf("sts assume role %q: %w", role, err)
	}
	if out.Credentials == nil {
		return nil, fmt.Errorf("sts returned no credentials for role %q", role)
	}

	creds := map[string]string{
		"role":            role,
		"accessKeyId":     aws.ToString(out.Credentials.AccessKeyId),
		"secretAccessKey": aws.ToString(out.Credentials.SecretAccessKey),
		"sessionToken":    aws.ToString(out.Credentials.SessionToken),
	}
	if out.Credentials.Expiration != nil {
		creds["expiration"] = out.Credentials.Expiration.Format(time.RFC3339)
	}
	return creds, nil
}
