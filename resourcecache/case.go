package resourcecache

import (
	"reflect"
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ResourceName derives a resource name from T: the type name in snake case,
// pluralized. Expense gives "expenses", LineItem gives "line_items".
func ResourceName[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Pointer || t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	name := toSnake(t.Name())
	if name == "" {
		return ""
	}
	head, last := "", name
	if i := strings.LastIndexByte(name, '_'); i >= 0 {
		head, last = name[:i+1], name[i+1:]
	}
	return head + inflection.Plural(last)
}

// entityLabel turns a resource name into the noun used in notices:
// "expenses" gives "Expense", "line_items" gives "Line item".
func entityLabel(resource string) string {
	words := strings.Fields(strings.ReplaceAll(toSnake(resource), "_", " "))
	if len(words) == 0 {
		return "Item"
	}
	words[len(words)-1] = inflection.Singular(words[len(words)-1])
	words[0] = cases.Title(language.English).String(words[0])
	return strings.Join(words, " ")
}

// toSnake converts s to snake_case. Anything that is not a letter or a digit
// becomes a single separator, so reflected names such as "Page[expense.Expense]"
// stay usable as a key segment.
func toSnake(s string) string {
	if s == "" {
		return ""
	}

	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	sep := false
	writeSep := func() {
		if !sep && b.Len() > 0 {
			b.WriteByte('_')
			sep = true
		}
	}

	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					writeSep()
				}
			}
			b.WriteRune(unicode.ToLower(r))
			sep = false
		case unicode.IsLower(r):
			b.WriteRune(r)
			sep = false
		case unicode.IsDigit(r):
			if i > 0 && unicode.IsLetter(runes[i-1]) {
				writeSep()
			}
			b.WriteRune(r)
			sep = false
		default:
			writeSep()
		}
	}

	return strings.Trim(b.String(), "_")
}
