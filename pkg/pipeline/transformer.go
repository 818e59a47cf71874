package pipeline

import (
	"context"
	"strings"

	"github.com/Sternrassler/retrieval-services/pkg/frame"
	"github.com/cockroachdb/errors"
)

// Errors reported while validating stage inputs.
var (
	ErrMissingColumns = errors.New("pipeline: missing columns")
	ErrNoMatchingMode = errors.New("pipeline: no matching input shape")
	ErrAmbiguousMode  = errors.New("pipeline: ambiguous input shape")
)

// Transformer is a pipeline stage mapping one frame to another.
type Transformer interface {
	Transform(ctx context.Context, inp *frame.Frame) (*frame.Frame, error)
}

// TransformFunc adapts a function to the Transformer interface.
type TransformFunc func(ctx context.Context, inp *frame.Frame) (*frame.Frame, error)

// Transform implements Transformer.
func (f TransformFunc) Transform(ctx context.Context, inp *frame.Frame) (*frame.Frame, error) {
	return f(ctx, inp)
}

// Then chains stages so that each receives the previous stage's output.
func Then(stages ...Transformer) Transformer {
	return TransformFunc(func(ctx context.Context, inp *frame.Frame) (*frame.Frame, error) {
		out := inp
		for _, s := range stages {
			var err error
			if out, err = s.Transform(ctx, out); err != nil {
				return nil, err
			}
		}
		return out, nil
	})
}

// RequireColumns fails with ErrMissingColumns unless f has every column.
func RequireColumns(f *frame.Frame, columns ...string) error {
	var missing []string
	for _, c := range columns {
		if !f.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return errors.WithHintf(
			errors.Wrapf(ErrMissingColumns, "%s", strings.Join(missing, ", ")),
			"input has columns: %s", strings.Join(f.Columns, ", "))
	}
	return nil
}

// Mode is one accepted input shape of a stage.
type Mode struct {
	Name     string
	Required []string
	Excluded []string
}

// Matches reports whether f has all required and none of the excluded columns.
func (m Mode) Matches(f *frame.Frame) bool {
	if !f.HasColumns(m.Required...) {
		return false
	}
	for _, c := range m.Excluded {
		if f.HasColumn(c) {
			return false
		}
	}
	return true
}

func (m Mode) describe() string {
	s := m.Name + " [" + strings.Join(m.Required, ", ") + "]"
	if len(m.Excluded) > 0 {
		s += " without [" + strings.Join(m.Excluded, ", ") + "]"
	}
	return s
}

// SelectMode picks the single mode matching f's columns. No match yields
// ErrNoMatchingMode, several matches ErrAmbiguousMode.
func SelectMode(f *frame.Frame, modes ...Mode) (Mode, error) {
	var matched []Mode
	for _, m := range modes {
		if m.Matches(f) {
			matched = append(matched, m)
		}
	}

	switch len(matched) {
	case 1:
		return matched[0], nil
	case 0:
		accepted := make([]string, len(modes))
		for i, m := range modes {
			accepted[i] = m.describe()
		}
		return Mode{}, errors.WithHintf(
			errors.Wrapf(ErrNoMatchingMode, "columns [%s]", strings.Join(f.Columns, ", ")),
			"accepted shapes: %s", strings.Join(accepted, "; "))
	default:
		names := make([]string, len(matched))
		for i, m := range matched {
			names[i] = m.Name
		}
		return Mode{}, errors.Wrapf(ErrAmbiguousMode, "columns [%s] match %s",
			strings.Join(f.Columns, ", "), strings.Join(names, ", "))
	}
}
