package types

import (
	"fmt"
	"slices"
)

type WidgetKind string

const (
	WidgetText        WidgetKind = "text"
	WidgetDropdown    WidgetKind = "dropdown"
	WidgetCombobox    WidgetKind = "combobox"
	WidgetMultiselect WidgetKind = "multiselect"
)

// WidgetDefinition is a named input parameter. Value is the current value,
// for multiselect widgets it is the comma separated list of selections.
type WidgetDefinition struct {
	Name  string     `json:"name"`
	Kind  WidgetKind `json:"kind"`
	Label string     `json:"label,omitempty"`

	DefaultValue string `json:"defaultValue"`
	Value        string `json:"value"`

	Choices []string `json:"choices,omitempty"`
}

func (w *WidgetDefinition) Validate() error {
	if w.Name == "" {
		return fmt.Errorf("%w: widget name is empty", ErrInvalidArgument)
	}

	switch w.Kind {
	case WidgetText:
		return nil

	case WidgetCombobox:
		if len(w.Choices) == 0 {
			return fmt.Errorf("%w: combobox %q has no choices", ErrInvalidArgument, w.Name)
		}
		return nil

	case WidgetDropdown, WidgetMultiselect:
		if len(w.Choices) == 0 {
			return fmt.Errorf("%w: %s %q has no choices", ErrInvalidArgument, w.Kind, w.Name)
		}
		if !slices.Contains(w.Choices, w.DefaultValue) {
			return fmt.Errorf("%w: default value %q of %s %q is not one of the choices", ErrInvalidArgument, w.DefaultValue, w.Kind, w.Name)
		}
		return nil
	}

	return fmt.Errorf("%w: unknown widget kind %q", ErrInvalidArgument, w.Kind)
}

// WidgetStore keeps widget definitions per session.
type WidgetStore interface {
	PutWidget(session string, w *WidgetDefinition) error
	GetWidget(session, name string) (*WidgetDefinition, error)
	ListWidgets(session string) ([]*WidgetDefinition, error)
	RemoveWidget(session, name string) error
	RemoveAllWidgets(session string) error
}
