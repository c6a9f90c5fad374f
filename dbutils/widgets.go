package dbutils

import (
	"context"
	"errors"

	"github.com/fioncat/dbutils/types"
)

// Widgets manages the input widgets of the session. A notebook argument
// bound with WithArguments takes precedence over the default value of the
// widget with the same name.
type Widgets struct {
	u *DBUtils
}

func (w *Widgets) Help(method string) string {
	return groupHelp("widgets", method)
}

// Get returns the current value of a widget. An undefined widget falls back
// to the bound argument, otherwise it is not found.
func (w *Widgets) Get(ctx context.Context, name string) (value string, err error) {
	defer observe("widgets", "get", &err)
	return w.get(name)
}

func (w *Widgets) get(name string) (string, error) {
	widget, err := w.u.ws.Store.GetWidget(w.u.session, name)
	if err == nil {
		return widget.Value, nil
	}
	if errors.Is(err, types.ErrNotFound) {
		if arg, ok := w.u.args[name]; ok {
			return arg, nil
		}
	}
	return "", err
}

// GetArgument is Get, returning defaultValue instead of failing when the
// widget is undefined.
func (w *Widgets) GetArgument(ctx context.Context, name, defaultValue string) (value string, err error) {
	defer observe("widgets", "getArgument", &err)
	value, err = w.get(name)
	if errors.Is(err, types.ErrNotFound) {
		return defaultValue, nil
	}
	return value, err
}

func (w *Widgets) Text(ctx context.Context, name, defaultValue, label string) (err error) {
	defer observe("widgets", "text", &err)
	return w.define(&types.WidgetDefinition{
		Name:         name,
		Kind:         types.WidgetText,
		Label:        label,
		DefaultValue: defaultValue,
	})
}

func (w *Widgets) Dropdown(ctx context.Context, name, defaultValue string, choices []string, label string) (err error) {
	defer observe("widgets", "dropdown", &err)
	return w.define(&types.WidgetDefinition{
		Name:         name,
		Kind:         types.WidgetDropdown,
		Label:        label,
		DefaultValue: defaultValue,
		Choices:      choices,
	})
}

// Combobox defines a widget whose value is free text, choices are only
// suggestions.
func (w *Widgets) Combobox(ctx context.Context, name, defaultValue string, choices []string, label string) (err error) {
	defer observe("widgets", "combobox", &err)
	return w.define(&types.WidgetDefinition{
		Name:         name,
		Kind:         types.WidgetCombobox,
		Label:        label,
		DefaultValue: defaultValue,
		Choices:      choices,
	})
}

// Multiselect defines a widget whose value is the comma separated list of
// the selected choices.
func (w *Widgets) Multiselect(ctx context.Context, name, defaultValue string, choices []string, label string) (err error) {
	defer observe("widgets", "multiselect", &err)
	return w.define(&types.WidgetDefinition{
		Name:         name,
		Kind:         types.WidgetMultiselect,
		Label:        label,
		DefaultValue: defaultValue,
		Choices:      choices,
	})
}

func (w *Widgets) define(widget *types.WidgetDefinition) error {
	err := widget.Validate()
	if err != nil {
		return err
	}

	widget.Value = widget.DefaultValue
	if arg, ok := w.u.args[widget.Name]; ok {
		widget.Value = arg
	}

	err = w.u.ws.Store.PutWidget(w.u.session, widget)
	if err != nil {
		return err
	}
	w.u.logger.Debugf("Define %s widget %q", widget.Kind, widget.Name)
	return nil
}

// Remove deletes one widget, it fails when the widget is undefined.
func (w *Widgets) Remove(ctx context.Context, name string) (err error) {
	defer observe("widgets", "remove", &err)
	return w.u.ws.Store.RemoveWidget(w.u.session, name)
}

func (w *Widgets) RemoveAll(ctx context.Context) (err error) {
	defer observe("widgets", "removeAll", &err)
	return w.u.ws.Store.RemoveAllWidgets(w.u.session)
}
