package stillsuit

import "time"

// Filter is a structured constraint applied to listing and counting
// queries. The variant set is closed: Where, BeforeAfter, InSet and
// LimitOffset. Multiple filters AND-combine in argument order.
type Filter interface {
	filter()
}

// Where constrains a field to equal a value. A slice of Where values is
// the structured replacement for free-form keyword filters.
type Where struct {
	Field string
	Value any
}

func (Where) filter() {}

// Eq is shorthand for a Where filter.
func Eq(field string, value any) Where {
	return Where{Field: field, Value: value}
}

// BeforeAfter constrains a time-valued field to an open range.
// A nil bound is unconstrained; Before is exclusive-upper, After
// exclusive-lower.
type BeforeAfter struct {
	Field  string
	Before *time.Time
	After  *time.Time
}

func (BeforeAfter) filter() {}

// InSet constrains a field to a set of allowed values.
type InSet struct {
	Field  string
	Values []any
}

func (InSet) filter() {}

// LimitOffset paginates a listing. It never affects counts.
type LimitOffset struct {
	Limit  int
	Offset int
}

func (LimitOffset) filter() {}

// whereFilters widens equality matchers into the Filter union.
func whereFilters(matchers []Where) []Filter {
	filters := make([]Filter, len(matchers))
	for i, m := range matchers {
		filters[i] = m
	}
	return filters
}

// splitFilters separates predicates from pagination, preserving predicate
// order. Only the last LimitOffset applies when several are given.
func splitFilters(filters []Filter) (predicates []Filter, page *LimitOffset) {
	for _, f := range filters {
		if lo, ok := f.(LimitOffset); ok {
			page = &lo
			continue
		}
		predicates = append(predicates, f)
	}
	return predicates, page
}

// paginate applies a LimitOffset to an already-filtered slice.
func paginate[T any](items []T, page *LimitOffset) []T {
	if page == nil {
		return items
	}
	start := page.Offset
	if start < 0 {
		start = 0
	}
	if start >= len(items) {
		return nil
	}
	end := len(items)
	if page.Limit > 0 && start+page.Limit < end {
		end = start + page.Limit
	}
	return items[start:end]
}
