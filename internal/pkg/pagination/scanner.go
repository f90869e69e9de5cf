// Package pagination drives next-cursor style endpoints to exhaustion.
package pagination

import (
	"context"
	"errors"
	"fmt"
)

// ErrCursorLoop is returned when an upstream hands back a cursor it already returned.
var ErrCursorLoop = errors.New("pagination cursor repeated")

// Page is one response of a cursor-paginated endpoint. An empty NextCursor ends the scan.
type Page[T any] struct {
	Items      []T
	NextCursor string
}

// PageFunc fetches the page at cursor. The first call receives "".
type PageFunc[T any] func(ctx context.Context, cursor string) (Page[T], error)

// Scan calls fetch until a page comes back without a cursor, handing every
// page's items to visit. It returns the number of pages fetched.
// An empty first page is a completed scan, not an error.
func Scan[T any](ctx context.Context, fetch PageFunc[T], visit func([]T) error) (int, error) {
	seen := make(map[string]struct{})
	cursor := ""
	pages := 0

	for {
		if err := ctx.Err(); err != nil {
			return pages, err
		}

		page, err := fetch(ctx, cursor)
		if err != nil {
			return pages, fmt.Errorf("fetch page %d: %w", pages+1, err)
		}
		pages++

		if len(page.Items) > 0 {
			if err := visit(page.Items); err != nil {
				return pages, err
			}
		}

		if page.NextCursor == "" {
			return pages, nil
		}
		if _, dup := seen[page.NextCursor]; dup {
			return pages, fmt.Errorf("%w: %q", ErrCursorLoop, page.NextCursor)
		}
		seen[page.NextCursor] = struct{}{}
		cursor = page.NextCursor
	}
}

// Collect scans to exhaustion and returns every item in page order.
func Collect[T any](ctx context.Context, fetch PageFunc[T]) ([]T, error) {
	var out []T
	_, err := Scan(ctx, fetch, func(items []T) error {
		out = append(out, items...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DedupeBy keeps the first item for every key, in encounter order.
// Items for which key reports false are dropped.
func DedupeBy[T any](items []T, key func(T) (string, bool)) []T {
	seen := make(map[string]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, it := range items {
		k, ok := key(it)
		if !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
	}
	return out
}
