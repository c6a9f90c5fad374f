package dbutils

import (
	"context"
	"errors"
	"testing"

	"github.com/fioncat/dbutils/types"
)

func TestWidgetGetArgument(t *testing.T) {
	ws := newTestWorkspace(t)
	u := newTestUtils(t, ws)
	ctx := context.Background()

	value, err := u.Widgets().GetArgument(ctx, "env", "dev")
	if err != nil {
		t.Fatal(err)
	}
	if value != "dev" {
		t.Fatalf("Expect default value, get %q", value)
	}
	_, err = u.Widgets().Get(ctx, "env")
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("Expect not found, get: %v", err)
	}
}

func TestWidgetDefine(t *testing.T) {
	ws := newTestWorkspace(t)
	u := newTestUtils(t, ws)
	ctx := context.Background()
	widgets := u.Widgets()

	err := widgets.Text(ctx, "table", "events", "Table")
	if err != nil {
		t.Fatal(err)
	}
	err = widgets.Dropdown(ctx, "env", "dev", []string{"dev", "prod"}, "Environment")
	if err != nil {
		t.Fatal(err)
	}
	err = widgets.Combobox(ctx, "region", "eu", []string{"us", "ap"}, "")
	if err != nil {
		t.Fatal(err)
	}
	err = widgets.Multiselect(ctx, "days", "mon", []string{"mon", "tue", "wed"}, "")
	if err != nil {
		t.Fatal(err)
	}

	expect := map[string]string{"table": "events", "env": "dev", "region": "eu", "days": "mon"}
	for name, want := range expect {
		value, err := widgets.Get(ctx, name)
		if err != nil {
			t.Fatal(err)
		}
		if value != want {
			t.Fatalf("Unexpect value %q of %q, expect %q", value, name, want)
		}
	}

	// Redefinition resets the value to the new default.
	err = widgets.Dropdown(ctx, "env", "prod", []string{"dev", "prod"}, "Environment")
	if err != nil {
		t.Fatal(err)
	}
	value, err := widgets.Get(ctx, "env")
	if err != nil {
		t.Fatal(err)
	}
	if value != "prod" {
		t.Fatalf("Expect redefined default, get %q", value)
	}

	invalid := []error{
		widgets.Dropdown(ctx, "env", "qa", []string{"dev", "prod"}, ""),
		widgets.Multiselect(ctx, "days", "sun", []string{"mon"}, ""),
		widgets.Combobox(ctx, "region", "eu", nil, ""),
		widgets.Text(ctx, "", "x", ""),
	}
	for i, err := range invalid {
		if !errors.Is(err, types.ErrInvalidArgument) {
			t.Fatalf("Expect invalid argument, get %v, index %d", err, i)
		}
	}

	// Widgets belong to the session.
	other := newTestUtils(t, ws)
	_, err = other.Widgets().Get(ctx, "env")
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("Widget leaked to another session: %v", err)
	}

	err = widgets.Remove(ctx, "table")
	if err != nil {
		t.Fatal(err)
	}
	err = widgets.Remove(ctx, "table")
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("Expect removing an undefined widget to fail, get: %v", err)
	}

	err = widgets.RemoveAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for name := range expect {
		_, err = widgets.Get(ctx, name)
		if !errors.Is(err, types.ErrNotFound) {
			t.Fatalf("Expect %q to be removed, get: %v", name, err)
		}
	}
}

func TestWidgetBoundArguments(t *testing.T) {
	ws := newTestWorkspace(t)
	u := newTestUtils(t, ws, WithArguments(map[string]string{"env": "prod", "date": "2024-01-01"}))
	ctx := context.Background()

	value, err := u.Widgets().Get(ctx, "date")
	if err != nil {
		t.Fatal(err)
	}
	if value != "2024-01-01" {
		t.Fatalf("Expect bound argument, get %q", value)
	}

	err = u.Widgets().Dropdown(ctx, "env", "dev", []string{"dev", "prod"}, "")
	if err != nil {
		t.Fatal(err)
	}
	value, err = u.Widgets().GetArgument(ctx, "env", "none")
	if err != nil {
		t.Fatal(err)
	}
	if value != "prod" {
		t.Fatalf("Expect bound argument to win over the default, get %q", value)
	}
}
