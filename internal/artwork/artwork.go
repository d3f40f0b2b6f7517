// Package artwork finds artist images for recommendation records.
//
// Lookups are best effort. A Finder reports failure as an empty URL and logs
// the cause; errors never reach the caller.
package artwork

import "context"

// Finder looks up an image URL for an artist name.
type Finder interface {
	// FindImage returns an image URL, or "" when none could be found.
	FindImage(ctx context.Context, artist string) string
}

// FinderFunc adapts a function to the Finder interface.
type FinderFunc func(ctx context.Context, artist string) string

// FindImage calls f.
func (f FinderFunc) FindImage(ctx context.Context, artist string) string {
	return f(ctx, artist)
}

// None never finds an image.
var None Finder = FinderFunc(func(context.Context, string) string { return "" })

// Chain tries each finder in order and returns the first non-empty URL.
type Chain []Finder

// FindImage implements Finder.
func (c Chain) FindImage(ctx context.Context, artist string) string {
	for _, f := range c {
		if f == nil {
			continue
		}
		if ctx.Err() != nil {
			return ""
		}
		if u := f.FindImage(ctx, artist); u != "" {
			return u
		}
	}
	return ""
}
