package types

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	gitparser "github.com/kubescape/go-git-url"
	githubparserv1 "github.com/kubescape/go-git-url/githubparser/v1"
	gitlabparserv1 "github.com/kubescape/go-git-url/gitlabparser/v1"
	giturl "github.com/whilp/git-urls"
)

// GitSource is a git repository used as a read-only mount source.
type GitSource struct {
	Domain string `json:"domain"`

	Owner string `json:"owner"`
	Name  string `json:"name"`

	Ref string `json:"ref"`
}

func (s *GitSource) String() string {
	base := fmt.Sprintf("%s:%s/%s", s.Domain, s.Owner, s.Name)
	if s.Ref != "" {
		return fmt.Sprintf("%s@%s", base, s.Ref)
	}
	return base
}

func (s *GitSource) IsGithub() bool {
	return githubparserv1.IsHostGitHub(s.Domain)
}

// Project returns "owner/name", the project path used by the APIs.
func (s *GitSource) Project() string {
	return fmt.Sprintf("%s/%s", s.Owner, s.Name)
}

func (s *GitSource) Validate() error {
	if s.Domain == "" {
		return errors.New("invalid git source, domain is empty")
	}
	if s.Owner == "" {
		return errors.New("invalid git source, owner is empty")
	}
	if s.Name == "" {
		return errors.New("invalid git source, name is empty")
	}
	return nil
}

var gitSshUrlRegex = regexp.MustCompile(`^(git@)?([^:]*):([^@]*)(@.*)?$`)

// ParseGitSource accepts web urls ("https://github.com/owner/repo/tree/ref")
// and ssh style urls ("[git@]domain:owner/repo[@ref]").
func ParseGitSource(url string) (*GitSource, error) {
	var ref string
	if !strings.HasPrefix(url, "http") {
		matches := gitSshUrlRegex.FindStringSubmatch(url)
		if len(matches) != 5 {
			return nil, fmt.Errorf("%w: invalid ssh clone url, the format is: '[git@]<domain>:<repo-path>[@ref]'", ErrInvalidArgument)
		}

		ref = strings.TrimSpace(strings.TrimPrefix(matches[4], "@"))
	}

	gitUrl, err := giturl.Parse(url)
	if err != nil {
		return nil, fmt.Errorf("%w: parse git url: %v", ErrInvalidArgument, err)
	}

	var parsedGitUrl gitparser.IGitURL
	if githubparserv1.IsHostGitHub(gitUrl.Host) {
		parsedGitUrl, err = githubparserv1.NewGitHubParserWithURL(url)
		if err != nil {
			return nil, fmt.Errorf("%w: parse github url: %v", ErrInvalidArgument, err)
		}
	} else {
		parsedGitUrl, err = gitlabparserv1.NewGitLabParserWithURL(url)
		if err != nil {
			return nil, fmt.Errorf("%w: parse gitlab url: %v", ErrInvalidArgument, err)
		}
	}

	if ref == "" {
		ref = path.Join(parsedGitUrl.GetBranchName(), parsedGitUrl.GetPath())
	}

	src := &GitSource{
		Domain: gitUrl.Hostname(),
		Owner:  parsedGitUrl.GetOwnerName(),
		Name:   parsedGitUrl.GetRepoName(),
		Ref:    ref,
	}
	err = src.Validate()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return src, nil
}
