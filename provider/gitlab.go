package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"

	"github.com/fioncat/dbutils/types"
	"github.com/xanzy/go-gitlab"
)

type gitlabProvider struct {
	src *types.GitSource

	client *gitlab.Client
}

func newGitlab(src *types.GitSource, token string) (*gitlabProvider, error) {
	url := fmt.Sprintf("https://%s/api/v4", src.Domain)
	client, err := gitlab.NewClient(token, gitlab.WithBaseURL(url))
	if err != nil {
		return nil, err
	}

	return &gitlabProvider{
		src:    src,
		client: client,
	}, nil
}

func (p *gitlabProvider) Check(ctx context.Context) error {
	project, _, err := p.client.Projects.GetProject(p.src.Project(), &gitlab.GetProjectOptions{}, gitlab.WithContext(ctx))
	if err != nil {
		return convertGitlabError(p.src.Project(), err)
	}
	if p.src.Ref == "" {
		p.src.Ref = project.DefaultBranch
	}

	return nil
}

// Stat looks the entry up in its parent tree, GitLab has no single call
// that answers for both files and directories.
func (p *gitlabProvider) Stat(ctx context.Context, name string) (*types.Entry, error) {
	apiPath := gitAPIPath(name)
	if apiPath == "" {
		return &types.Entry{Path: "/", IsDir: true}, nil
	}

	siblings, err := p.ReadDir(ctx, path.Dir("/"+apiPath))
	if err != nil {
		if errors.Is(err, types.ErrNotADirectory) {
			return nil, fmt.Errorf("%w: %q", types.ErrNotFound, name)
		}
		return nil, err
	}
	for _, ent := range siblings {
		if ent.Name == path.Base(apiPath) {
			return ent, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", types.ErrNotFound, name)
}

func (p *gitlabProvider) ReadDir(ctx context.Context, name string) ([]*types.Entry, error) {
	apiPath := gitAPIPath(name)
	nodes, _, err := p.client.Repositories.ListTree(p.src.Project(), &gitlab.ListTreeOptions{
		Path: gitlab.Ptr(apiPath),
		Ref:  &p.src.Ref,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, convertGitlabError(name, err)
	}
	if len(nodes) == 0 && apiPath != "" {
		// ListTree returns an empty list for files and missing paths.
		ent, err := p.fileEntry(ctx, apiPath)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %q", types.ErrNotADirectory, ent.Path)
	}

	ents := make([]*types.Entry, len(nodes))
	for i, node := range nodes {
		if node.Path == "" || node.Name == "" {
			return nil, errors.New("gitlab return entry with empty name or path")
		}

		switch node.Type {
		case "tree":
			ents[i] = &types.Entry{
				Path:  "/" + node.Path,
				Name:  node.Name,
				IsDir: true,
			}

		case "blob":
			ents[i], err = p.fileEntry(ctx, node.Path)
			if err != nil {
				return nil, err
			}

		default:
			return nil, fmt.Errorf("unknown gitlab node type %q for %q", node.Type, node.Path)
		}
	}

	return ents, nil
}

func (p *gitlabProvider) ReadFile(ctx context.Context, name string, limit int64) ([]byte, error) {
	data, _, err := p.client.RepositoryFiles.GetRawFile(p.src.Project(), gitAPIPath(name), &gitlab.GetRawFileOptions{
		Ref: &p.src.Ref,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, convertGitlabError(name, err)
	}
	if limit > 0 && int64(len(data)) > limit {
		data = data[:limit]
	}
	return data, nil
}

func (p *gitlabProvider) fileEntry(ctx context.Context, apiPath string) (*types.Entry, error) {
	fileMeta, _, err := p.client.RepositoryFiles.GetFileMetaData(p.src.Project(), apiPath, &gitlab.GetFileMetaDataOptions{
		Ref: &p.src.Ref,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, convertGitlabError("/"+apiPath, err)
	}
	return &types.Entry{
		Path: "/" + apiPath,
		Name: path.Base(apiPath),
		Size: int64(fileMeta.Size),
	}, nil
}

func convertGitlabError(name string, err error) error {
	var respErr *gitlab.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch respErr.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %q", types.ErrNotFound, name)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %q", types.ErrPermission, name)
		}
	}
	return fmt.Errorf("gitlab %q: %w", name, err)
}
