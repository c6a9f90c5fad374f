package types

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseGitSource(t *testing.T) {
	testCases := []struct {
		url    string
		expect *GitSource
	}{
		{
			url: "https://my-gitlab.com/data-team/notebooks.git",
			expect: &GitSource{
				Domain: "my-gitlab.com",
				Owner:  "data-team",
				Name:   "notebooks",
			},
		},
		{
			url: "https://my-gitlab.com/analytics/shared/fixtures/-/tree/feat/parquet",
			expect: &GitSource{
				Domain: "my-gitlab.com",
				Owner:  "analytics/shared",
				Name:   "fixtures",
				Ref:    "feat/parquet",
			},
		},
		{
			url: "gitlab.com:analytics/shared/fixtures@release/2024",
			expect: &GitSource{
				Domain: "gitlab.com",
				Owner:  "analytics/shared",
				Name:   "fixtures",
				Ref:    "release/2024",
			},
		},
		{
			url: "https://github.com/golang/go/tree/release-branch.go1.21",
			expect: &GitSource{
				Domain: "github.com",
				Owner:  "golang",
				Name:   "go",
				Ref:    "release-branch.go1.21",
			},
		},
		{
			url: "git@github.com:fioncat/dbutils.git",
			expect: &GitSource{
				Domain: "github.com",
				Owner:  "fioncat",
				Name:   "dbutils",
			},
		},
		{
			url: "github.com:fioncat/dbutils",
			expect: &GitSource{
				Domain: "github.com",
				Owner:  "fioncat",
				Name:   "dbutils",
			},
		},
		{
			url: "git@github.com:fioncat/dbutils.git@dev",
			expect: &GitSource{
				Domain: "github.com",
				Owner:  "fioncat",
				Name:   "dbutils",
				Ref:    "dev",
			},
		},
	}

	for i, tc := range testCases {
		src, err := ParseGitSource(tc.url)
		if err != nil {
			t.Fatalf("Parse url %q: %v", tc.url, err)
		}
		if !reflect.DeepEqual(src, tc.expect) {
			t.Fatalf("Unexpect parsed source %+v, expect %+v, Index: %d", src, tc.expect, i)
		}
	}
}

func TestParseGitSourceInvalid(t *testing.T) {
	_, err := ParseGitSource("not a repository")
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Expect invalid argument, get %v", err)
	}
}

func TestGitSourceString(t *testing.T) {
	testCases := []struct {
		src      *GitSource
		str      string
		isGithub bool
	}{
		{
			src: &GitSource{
				Domain: "github.com",
				Owner:  "fioncat",
				Name:   "dbutils",
				Ref:    "dev",
			},
			str:      "github.com:fioncat/dbutils@dev",
			isGithub: true,
		},
		{
			src: &GitSource{
				Domain: "my-gitlab.com",
				Owner:  "analytics/shared",
				Name:   "fixtures",
			},
			str:      "my-gitlab.com:analytics/shared/fixtures",
			isGithub: false,
		},
	}

	for i, tc := range testCases {
		if str := tc.src.String(); str != tc.str {
			t.Fatalf("Unexpect source string %q, expect %q, index %d", str, tc.str, i)
		}
		if isGithub := tc.src.IsGithub(); isGithub != tc.isGithub {
			t.Fatalf("Unexpect source isGithub %v, expect %v, index %d", isGithub, tc.isGithub, i)
		}
	}
}
