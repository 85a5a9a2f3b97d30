package expense

import (
	"fmt"
	"net/url"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/goliatone/go-query-cache/resourcecache"
)

// Category values accepted by the API.
const (
	CategoryFood     = "food"
	CategoryTravel   = "travel"
	CategoryShopping = "shopping"
)

var categories = []string{CategoryFood, CategoryTravel, CategoryShopping}

// label title-cases a value. Casers hold state, so one is built per call.
func label(v string) string { return cases.Title(language.English).String(v) }

// Option is a value and the label shown for it.
type Option struct {
	Value string
	Label string
}

// Categories returns the category options in display order.
func Categories() []Option {
	out := make([]Option, len(categories))
	for i, c := range categories {
		out[i] = Option{Value: c, Label: label(c)}
	}
	return out
}

// IsCategory reports whether v is a known category.
func IsCategory(v string) bool {
	for _, c := range categories {
		if c == v {
			return true
		}
	}
	return false
}

// CategoryLabel returns the label of v, or "Unknown".
func CategoryLabel(v string) string {
	if !IsCategory(v) {
		return "Unknown"
	}
	return label(v)
}

// Sort fields and orders understood by the list endpoint.
const (
	SortAmount    = "amount"
	SortCreatedAt = "createdAt"
	OrderAsc      = "asc"
	OrderDesc     = "desc"
)

// Sort is a sortBy/order pair. Its string form is "field_order".
type Sort struct {
	Field string
	Order string
}

// DefaultSort lists the newest expenses first.
var DefaultSort = Sort{Field: SortCreatedAt, Order: OrderDesc}

func (s Sort) String() string { return s.Field + "_" + s.Order }

var sortLabels = map[Sort]string{
	{SortAmount, OrderAsc}:     "Amount: Low to High",
	{SortAmount, OrderDesc}:    "Amount: High to Low",
	{SortCreatedAt, OrderAsc}:  "Date: Oldest to Newest",
	{SortCreatedAt, OrderDesc}: "Date: Newest to Oldest",
}

// Label returns the display label of s.
func (s Sort) Label() string { return sortLabels[s] }

// SortOptions returns the sort choices in display order.
func SortOptions() []Option {
	order := []Sort{
		{SortAmount, OrderAsc},
		{SortAmount, OrderDesc},
		{SortCreatedAt, OrderAsc},
		{SortCreatedAt, OrderDesc},
	}
	out := make([]Option, len(order))
	for i, s := range order {
		out[i] = Option{Value: s.String(), Label: s.Label()}
	}
	return out
}

// ParseSort parses "field_order". An empty value yields DefaultSort.
func ParseSort(v string) (Sort, error) {
	if v == "" {
		return DefaultSort, nil
	}
	field, order, ok := strings.Cut(v, "_")
	s := Sort{Field: field, Order: order}
	if _, known := sortLabels[s]; !ok || !known {
		return DefaultSort, goerrors.New(fmt.Sprintf("unknown sort %q", v), goerrors.CategoryBadInput).
			WithTextCode("INVALID_SORT")
	}
	return s, nil
}

// Query is the list state kept in the query string: ?category=&sort=.
type Query struct {
	Category string
	Sort     Sort
}

// ParseQuery reads category and sort. Invalid values fall back to the
// defaults and are reported in the error.
func ParseQuery(values url.Values) (Query, error) {
	q := Query{Category: strings.TrimSpace(values.Get("category"))}
	var err error
	q.Sort, err = ParseSort(values.Get("sort"))
	if q.Category != "" && !IsCategory(q.Category) {
		q.Category = ""
		if err == nil {
			err = goerrors.New(fmt.Sprintf("unknown category %q", values.Get("category")), goerrors.CategoryBadInput).
				WithTextCode("INVALID_CATEGORY")
		}
	}
	return q, err
}

// Values returns the query as URL values. An empty category is left out.
func (q Query) Values() url.Values {
	v := url.Values{}
	if q.Category != "" {
		v.Set("category", q.Category)
	}
	s := q.Sort
	if s.Field == "" {
		s = DefaultSort
	}
	v.Set("sort", s.String())
	return v
}

// Encode returns the query string form.
func (q Query) Encode() string { return q.Values().Encode() }

// Filter returns the list filter the query selects.
func (q Query) Filter() resourcecache.ListFilter {
	s := q.Sort
	if s.Field == "" {
		s = DefaultSort
	}
	return resourcecache.ListFilter{Category: q.Category, SortBy: s.Field, Order: s.Order}
}
