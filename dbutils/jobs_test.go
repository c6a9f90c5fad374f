package dbutils

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/fioncat/dbutils/types"
)

func TestTaskValuesOutsideJob(t *testing.T) {
	ws := newTestWorkspace(t)
	u := newTestUtils(t, ws)
	ctx := context.Background()
	tv := u.Jobs().TaskValues()

	err := tv.Set(ctx, "rows", 42)
	if err != nil {
		t.Fatal(err)
	}

	value, err := tv.Get(ctx, "ingest", "rows", 0, 7)
	if err != nil {
		t.Fatal(err)
	}
	if value != 7 {
		t.Fatalf("Expect debug value, get %v", value)
	}

	_, err = tv.Get(ctx, "ingest", "rows", 0, nil)
	if !errors.Is(err, types.ErrInvalidArgument) {
		t.Fatalf("Expect invalid argument without debug value, get: %v", err)
	}

	err = tv.Set(ctx, "big", strings.Repeat("x", MaxTaskValueSize))
	if !errors.Is(err, types.ErrInvalidArgument) {
		t.Fatalf("Expect oversized value to be rejected, get: %v", err)
	}
	err = tv.Set(ctx, "fn", func() {})
	if !errors.Is(err, types.ErrInvalidArgument) {
		t.Fatalf("Expect non JSON value to be rejected, get: %v", err)
	}
	err = tv.Set(ctx, "a\x00b", 1)
	if !errors.Is(err, types.ErrInvalidArgument) {
		t.Fatalf("Expect NUL in key to be rejected, get: %v", err)
	}
}

func TestTaskValuesInJob(t *testing.T) {
	ws := newTestWorkspace(t)
	ctx := context.Background()

	producer := newTestUtils(t, ws, WithJobContext("run-1", "ingest"))
	err := producer.Jobs().TaskValues().Set(ctx, "stats", map[string]any{"rows": 42, "ok": true})
	if err != nil {
		t.Fatal(err)
	}

	consumer := newTestUtils(t, ws, WithJobContext("run-1", "report"))
	tv := consumer.Jobs().TaskValues()
	value, err := tv.Get(ctx, "ingest", "stats", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	expect := map[string]any{"rows": float64(42), "ok": true}
	if !reflect.DeepEqual(value, expect) {
		t.Fatalf("Unexpect task value %#v", value)
	}

	value, err = tv.Get(ctx, "ingest", "missing", "fallback", "debug")
	if err != nil {
		t.Fatal(err)
	}
	if value != "fallback" {
		t.Fatalf("Expect default value, get %v", value)
	}
	_, err = tv.Get(ctx, "ingest", "missing", nil, "debug")
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("Expect not found, get: %v", err)
	}

	other := newTestUtils(t, ws, WithJobContext("run-2", "report"))
	_, err = other.Jobs().TaskValues().Get(ctx, "ingest", "stats", nil, nil)
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("Task values must be scoped by run, get: %v", err)
	}
}

func TestRunJob(t *testing.T) {
	ws := newTestWorkspace(t)
	ctx := context.Background()

	var order []string
	err := ws.Notebooks.Register("/ingest", func(ctx context.Context, nb *DBUtils) error {
		order = append(order, "ingest")
		source, err := nb.Widgets().GetArgument(ctx, "source", "none")
		if err != nil {
			return err
		}
		err = nb.Jobs().TaskValues().Set(ctx, "source", source)
		if err != nil {
			return err
		}
		return nb.Notebook().Exit("ingested")
	})
	if err != nil {
		t.Fatal(err)
	}
	err = ws.Notebooks.Register("/report", func(ctx context.Context, nb *DBUtils) error {
		order = append(order, "report")
		source, err := nb.Jobs().TaskValues().Get(ctx, "ingest", "source", nil, nil)
		if err != nil {
			return err
		}
		return nb.Notebook().Exit("report from " + source.(string))
	})
	if err != nil {
		t.Fatal(err)
	}

	run, err := ws.RunJob(ctx, []JobTask{
		{Key: "report", Notebook: "/report", DependsOn: []string{"ingest"}},
		{Key: "ingest", Notebook: "/ingest", Arguments: map[string]string{"source": "s3://landing"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if run.RunID == "" {
		t.Fatal("Expect a run ID")
	}
	if !reflect.DeepEqual(order, []string{"ingest", "report"}) {
		t.Fatalf("Unexpect order %v", order)
	}
	expect := map[string]string{"ingest": "ingested", "report": "report from s3://landing"}
	if !reflect.DeepEqual(run.Results, expect) {
		t.Fatalf("Unexpect results %v", run.Results)
	}
}

func TestSortTasksInvalid(t *testing.T) {
	testCases := [][]JobTask{
		{{Key: "a", DependsOn: []string{"b"}}, {Key: "b", DependsOn: []string{"a"}}},
		{{Key: "a", DependsOn: []string{"missing"}}},
		{{Key: "a"}, {Key: "a"}},
		{{Key: ""}},
		{{Key: "a\x00b"}},
	}
	for i, tasks := range testCases {
		_, err := sortTasks(tasks)
		if !errors.Is(err, types.ErrInvalidArgument) {
			t.Fatalf("Expect invalid argument, get %v, index %d", err, i)
		}
	}
}

func TestSortTasksOrder(t *testing.T) {
	tasks := []JobTask{
		{Key: "a"},
		{Key: "b", DependsOn: []string{"a"}},
		{Key: "c", DependsOn: []string{"e"}},
		{Key: "d"},
		{Key: "e"},
	}
	order, err := sortTasks(tasks)
	if err != nil {
		t.Fatal(err)
	}
	keys := make([]string, len(order))
	for i, task := range order {
		keys[i] = task.Key
	}
	if !reflect.DeepEqual(keys, []string{"a", "b", "d", "e", "c"}) {
		t.Fatalf("Unexpect order %v", keys)
	}
}
