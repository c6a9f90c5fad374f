package provider

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/fioncat/dbutils/types"
	"github.com/spf13/afero"
)

// Checker is implemented by providers that can verify the source exists
// before it is mounted.
type Checker interface {
	Check(ctx context.Context) error
}

// Source is a resolved mount source or direct URI: the provider and the
// root path inside it.
type Source struct {
	Provider types.Provider

	Root string
}

var s3Schemes = []string{"s3", "s3a", "s3n"}

// IsDBFS reports whether uri addresses the workspace DBFS root.
func IsDBFS(uri string) bool {
	return strings.HasPrefix(uri, "/") || strings.HasPrefix(uri, "dbfs:")
}

// Load builds the provider for a mount source. DBFS paths cannot be mount
// sources. extraConfigs override the S3 settings from the config file.
func Load(ctx context.Context, source string, encryptionType string, extraConfigs map[string]string, cfg *types.Config) (*Source, error) {
	if source == "" {
		return nil, fmt.Errorf("%w: source is empty", types.ErrInvalidArgument)
	}
	if IsDBFS(source) {
		return nil, fmt.Errorf("%w: source %q cannot be a DBFS path", types.ErrInvalidArgument, source)
	}

	scheme, _, hasScheme := strings.Cut(source, "://")
	switch {
	case hasScheme && isS3Scheme(scheme):
		return loadS3(ctx, source, encryptionType, extraConfigs, cfg)

	case strings.HasPrefix(source, "file:"):
		root, err := localPath(source)
		if err != nil {
			return nil, err
		}
		return &Source{
			Provider: NewAfero(afero.NewOsFs()),
			Root:     root,
		}, nil
	}

	src, err := types.ParseGitSource(source)
	if err != nil {
		return nil, err
	}
	var token string
	if cfg.Auths != nil {
		token = cfg.Auths[src.Domain]
	}
	if src.IsGithub() {
		return &Source{Provider: newGithub(src, token), Root: "/"}, nil
	}
	prov, err := newGitlab(src, token)
	if err != nil {
		return nil, fmt.Errorf("init gitlab api: %w", err)
	}
	return &Source{Provider: prov, Root: "/"}, nil
}

// Resolve builds the provider for a URI used directly, without a mount:
// "file:" paths and S3 URIs. The returned path is the location inside the
// provider.
func Resolve(ctx context.Context, uri string, cfg *types.Config) (types.Provider, string, error) {
	if strings.HasPrefix(uri, "file:") {
		p, err := localPath(uri)
		if err != nil {
			return nil, "", err
		}
		return NewAfero(afero.NewOsFs()), p, nil
	}

	scheme, _, hasScheme := strings.Cut(uri, "://")
	if hasScheme && isS3Scheme(scheme) {
		src, err := loadS3(ctx, uri, "", nil, cfg)
		if err != nil {
			return nil, "", err
		}
		return src.Provider, src.Root, nil
	}

	return nil, "", fmt.Errorf("%w: unsupported uri %q", types.ErrInvalidArgument, uri)
}

func loadS3(ctx context.Context, source, encryptionType string, extraConfigs map[string]string, cfg *types.Config) (*Source, error) {
	u, err := url.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%w: parse s3 uri: %v", types.ErrInvalidArgument, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: s3 uri %q has no bucket", types.ErrInvalidArgument, types.RedactSource(source))
	}

	opts := &s3Options{encryptionType: encryptionType}
	if cfg.S3 != nil {
		opts.S3Config = *cfg.S3
	}
	if u.User != nil {
		opts.AccessKey = u.User.Username()
		opts.SecretKey, _ = u.User.Password()
	}
	for key, value := range extraConfigs {
		switch key {
		case S3ConfigEndpoint:
			opts.Endpoint = value
		case S3ConfigRegion:
			opts.Region = value
		case S3ConfigAccessKey:
			opts.AccessKey = value
		case S3ConfigSecretKey:
			opts.SecretKey = value
		case S3ConfigPathStyle:
			opts.UsePathStyle, err = strconv.ParseBool(value)
			if err != nil {
				return nil, fmt.Errorf("%w: %s must be a boolean", types.ErrInvalidArgument, S3ConfigPathStyle)
			}
		}
	}

	prov, err := newS3(ctx, u.Host, opts)
	if err != nil {
		return nil, err
	}
	return &Source{
		Provider: prov,
		Root:     path.Clean("/" + u.Path),
	}, nil
}

func localPath(uri string) (string, error) {
	p := strings.TrimPrefix(uri, "file:")
	// Accept both "file:/tmp" and "file:///tmp".
	p = strings.TrimPrefix(p, "//")
	if !strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: local path %q must be absolute", types.ErrInvalidArgument, uri)
	}
	return path.Clean(p), nil
}

func isS3Scheme(scheme string) bool {
	for _, s := range s3Schemes {
		if scheme == s {
			return true
		}
	}
	return false
}
