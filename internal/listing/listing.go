// Package listing holds the read-only projections used to render collections:
// search, status filtering, stable sorting and pagination over data that has
// already been loaded.
package listing

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Order is the direction of a sort.
type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// StatusAll disables status filtering.
const StatusAll = "all"

// ParseOrder normalises a user-supplied order, defaulting to ascending.
func ParseOrder(value string) Order {
	if strings.EqualFold(strings.TrimSpace(value), string(Desc)) {
		return Desc
	}
	return Asc
}

// Accessor extracts a sortable value from an item. Returning nil marks the
// value as missing.
type Accessor[T any] func(T) any

// Fields maps public field names to accessors.
type Fields[T any] map[string]Accessor[T]

// Lookup resolves a field name case-insensitively.
func (f Fields[T]) Lookup(name string) (Accessor[T], bool) {
	accessor, ok := f[strings.ToLower(strings.TrimSpace(name))]
	return accessor, ok
}

// FilterBySearch keeps the items where any of the given fields contains term,
// ignoring case. An empty term keeps everything in its original order.
func FilterBySearch[T any](items []T, term string, fields ...func(T) string) []T {
	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return items
	}

	result := make([]T, 0, len(items))
	for _, item := range items {
		for _, field := range fields {
			if strings.Contains(strings.ToLower(field(item)), needle) {
				result = append(result, item)
				break
			}
		}
	}
	return result
}

// FilterByStatus keeps items whose status equals status, ignoring case.
// An empty status or "all" keeps everything.
func FilterByStatus[T any](items []T, status string, statusOf func(T) string) []T {
	wanted := strings.TrimSpace(status)
	if wanted == "" || strings.EqualFold(wanted, StatusAll) {
		return items
	}

	result := make([]T, 0, len(items))
	for _, item := range items {
		if strings.EqualFold(statusOf(item), wanted) {
			result = append(result, item)
		}
	}
	return result
}

// SortBy returns a stably sorted copy of items. Ties keep their original
// relative order and missing values sort before everything else.
func SortBy[T any](items []T, key Accessor[T], order Order) []T {
	sorted := slices.Clone(items)
	if key == nil {
		return sorted
	}

	slices.SortStableFunc(sorted, func(a, b T) int {
		result := Compare(key(a), key(b))
		if order == Desc {
			return -result
		}
		return result
	})
	return sorted
}

// Paginate returns the requested page. Non-positive page sizes return all items.
func Paginate[T any](items []T, page, pageSize int) []T {
	if pageSize <= 0 {
		return items
	}
	if page <= 0 {
		page = 1
	}

	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := min(start+pageSize, len(items))
	return items[start:end]
}

// Compare orders two accessor values. Missing values (nil or nil pointers)
// are smallest; mismatched kinds fall back to their string form.
func Compare(a, b any) int {
	a, b = deref(a), deref(b)
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			default:
				return 1
			}
		}
	}

	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}

	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func deref(value any) any {
	switch v := value.(type) {
	case *string:
		if v == nil {
			return nil
		}
		return *v
	case *float64:
		if v == nil {
			return nil
		}
		return *v
	case *int:
		if v == nil {
			return nil
		}
		return *v
	case *uint:
		if v == nil {
			return nil
		}
		return *v
	case *time.Time:
		if v == nil {
			return nil
		}
		return *v
	case *bool:
		if v == nil {
			return nil
		}
		return *v
	}
	return value
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}
