package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/fioncat/dbutils/types"
	"github.com/google/go-github/v56/github"
	"golang.org/x/oauth2"
)

type githubProvider struct {
	src *types.GitSource

	client *github.Client
}

func newGithub(src *types.GitSource, token string) *githubProvider {
	var httpCli *http.Client
	ctx := context.Background()
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: token,
		})
		httpCli = oauth2.NewClient(ctx, ts)
	}

	client := github.NewClient(httpCli)

	return &githubProvider{
		src:    src,
		client: client,
	}
}

func (p *githubProvider) Check(ctx context.Context) error {
	githubRepo, _, err := p.client.Repositories.Get(ctx, p.src.Owner, p.src.Name)
	if err != nil {
		return convertGithubError(p.src.Project(), err)
	}
	if p.src.Ref == "" {
		if githubRepo.DefaultBranch != nil {
			p.src.Ref = *githubRepo.DefaultBranch
		}
	}
	return nil
}

func (p *githubProvider) Stat(ctx context.Context, name string) (*types.Entry, error) {
	apiPath := gitAPIPath(name)
	if apiPath == "" {
		return &types.Entry{Path: "/", IsDir: true}, nil
	}

	fc, _, _, err := p.client.Repositories.GetContents(ctx, p.src.Owner, p.src.Name, apiPath,
		&github.RepositoryContentGetOptions{
			Ref: p.src.Ref,
		})
	if err != nil {
		return nil, convertGithubError(name, err)
	}
	if fc == nil {
		return &types.Entry{Path: name, Name: path.Base(name), IsDir: true}, nil
	}
	return githubContentToEntry(fc)
}

func (p *githubProvider) ReadDir(ctx context.Context, name string) ([]*types.Entry, error) {
	fc, dc, _, err := p.client.Repositories.GetContents(ctx, p.src.Owner, p.src.Name, gitAPIPath(name),
		&github.RepositoryContentGetOptions{
			Ref: p.src.Ref,
		})
	if err != nil {
		return nil, convertGithubError(name, err)
	}
	if fc != nil {
		return nil, fmt.Errorf("%w: %q", types.ErrNotADirectory, name)
	}

	ents := make([]*types.Entry, len(dc))
	for i, content := range dc {
		ents[i], err = githubContentToEntry(content)
		if err != nil {
			return nil, err
		}
	}

	return ents, nil
}

func (p *githubProvider) ReadFile(ctx context.Context, name string, limit int64) ([]byte, error) {
	reader, _, err := p.client.Repositories.DownloadContents(ctx, p.src.Owner, p.src.Name, gitAPIPath(name),
		&github.RepositoryContentGetOptions{
			Ref: p.src.Ref,
		})
	if err != nil {
		return nil, convertGithubError(name, err)
	}
	defer reader.Close()

	var r io.Reader = reader
	if limit > 0 {
		r = io.LimitReader(reader, limit)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read content for %q: %w", name, err)
	}

	return data, nil
}

func githubContentToEntry(content *github.RepositoryContent) (*types.Entry, error) {
	contentPath := content.GetPath()
	name := content.GetName()
	if contentPath == "" || name == "" {
		return nil, errors.New("github return entry with empty name or path")
	}

	ent := &types.Entry{
		Path:   "/" + contentPath,
		Name:   name,
		WebUrl: content.GetHTMLURL(),
	}
	switch content.GetType() {
	case "dir":
		ent.IsDir = true

	case "file":
		ent.Size = int64(content.GetSize())

	case "symlink":
		ent.IsSymLink = true
		ent.LinkName = content.GetTarget()
		if ent.LinkName == "" {
			return nil, fmt.Errorf("entry %q is a symlink, but its target is empty", contentPath)
		}

	case "":
		return nil, fmt.Errorf("entry type is empty for %q", contentPath)

	default:
		return nil, fmt.Errorf("unknown entry type %q for %q", content.GetType(), contentPath)
	}
	return ent, nil
}

func convertGithubError(name string, err error) error {
	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch respErr.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %q", types.ErrNotFound, name)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %q", types.ErrPermission, name)
		}
	}
	return fmt.Errorf("github %q: %w", name, err)
}

// gitAPIPath converts an absolute provider path to the repository relative
// path the APIs expect.
func gitAPIPath(name string) string {
	return strings.Trim(path.Clean("/"+name), "/")
}
