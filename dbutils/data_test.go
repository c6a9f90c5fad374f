package dbutils

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/fioncat/dbutils/types"
)

func TestSummarize(t *testing.T) {
	ws := newTestWorkspace(t)
	u := newTestUtils(t, ws)

	table := &Table{
		Columns: []string{"id", "city", "score"},
		Rows: [][]any{
			{1, "paris", "2.5"},
			{2, "berlin", 3.5},
			{3, "paris", nil},
			{4, "", int64(6)},
		},
	}
	summary, err := u.Data().Summarize(context.Background(), table, true)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Rows != 4 || len(summary.Columns) != 3 {
		t.Fatalf("Unexpect summary %+v", summary)
	}

	id := summary.Columns[0]
	if id.Count != 4 || id.Missing != 0 || id.Distinct != 4 || !id.Numeric {
		t.Fatalf("Unexpect id summary %+v", id)
	}
	if id.Min != 1 || id.Max != 4 || id.Mean != 2.5 {
		t.Fatalf("Unexpect id statistics %+v", id)
	}
	if math.Abs(id.StdDev-math.Sqrt(5.0/3.0)) > 1e-9 {
		t.Fatalf("Unexpect id stddev %v", id.StdDev)
	}

	city := summary.Columns[1]
	if city.Count != 3 || city.Missing != 1 || city.Distinct != 2 || city.Numeric {
		t.Fatalf("Unexpect city summary %+v", city)
	}

	score := summary.Columns[2]
	if score.Count != 3 || score.Missing != 1 || !score.Numeric || score.Min != 2.5 || score.Max != 6 {
		t.Fatalf("Unexpect score summary %+v", score)
	}

	out := summary.String()
	for _, want := range []string{"COLUMN", "city", "score", "2.5"} {
		if !strings.Contains(out, want) {
			t.Fatalf("Summary table misses %q:\n%s", want, out)
		}
	}
}

func TestSummarizeApproximate(t *testing.T) {
	ws := newTestWorkspace(t)
	u := newTestUtils(t, ws)

	table := &Table{Columns: []string{"user"}}
	for i := 0; i < 5000; i++ {
		table.Rows = append(table.Rows, []any{fmt.Sprintf("user-%d", i%2000)})
	}

	summary, err := u.Data().Summarize(context.Background(), table, false)
	if err != nil {
		t.Fatal(err)
	}
	distinct := summary.Columns[0].Distinct
	if math.Abs(float64(distinct-2000)) > 100 {
		t.Fatalf("Estimate %d is too far from 2000", distinct)
	}
	if !strings.Contains(summary.String(), "~") {
		t.Fatal("Expect estimated counts to be marked")
	}
}

func TestSummarizeInvalid(t *testing.T) {
	ws := newTestWorkspace(t)
	u := newTestUtils(t, ws)

	_, err := u.Data().Summarize(context.Background(), &Table{}, false)
	if !errors.Is(err, types.ErrInvalidArgument) {
		t.Fatalf("Expect invalid argument, get: %v", err)
	}
	_, err = u.Data().Summarize(context.Background(), &Table{
		Columns: []string{"a", "b"},
		Rows:    [][]any{{1}},
	}, false)
	if !errors.Is(err, types.ErrInvalidArgument) {
		t.Fatalf("Expect invalid argument, get: %v", err)
	}
}
