// Package display shows lyrics to the user.
package display

import (
	"context"
	"errors"

	"spotmylyrics/internal/lyrics"
)

const notFoundText = "No lyrics found."

// Display receives the outcome of a lyrics lookup.
type Display interface {
	Show(ctx context.Context, t lyrics.Track, text string) error
	NotFound(ctx context.Context, t lyrics.Track) error
}

// Multi fans out to every display; all of them are called even when one fails.
type Multi []Display

func (m Multi) Show(ctx context.Context, t lyrics.Track, text string) error {
	var errs []error
	for _, d := range m {
		if err := d.Show(ctx, t, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) NotFound(ctx context.Context, t lyrics.Track) error {
	var errs []error
	for _, d := range m {
		if err := d.NotFound(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
