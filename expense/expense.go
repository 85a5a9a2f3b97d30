// Package expense holds the expense record and everything the UI needs
// around it: drafts and their validation, categories, sort options, the
// list query string and display formatting.
package expense

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/goliatone/go-query-cache/faults"
)

// Resource is the REST path and cache key prefix of expenses.
const Resource = "expenses"

// Expense is one expense record as the API returns it.
type Expense struct {
	ID        ID     `json:"id"`
	Title     string `json:"title"`
	Amount    Amount `json:"amount"`
	Category  string `json:"category"`
	Notes     string `json:"notes"`
	CreatedAt int64  `json:"createdAt"`
}

// ID is a record id. The API may send it as a string or a number.
type ID string

func (id ID) String() string { return string(id) }

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*id = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return faults.Serialization(err, "decode expense id")
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return faults.Serialization(err, "decode expense id")
	}
	*id = ID(n.String())
	return nil
}

// Amount is a decimal money amount. It marshals as a JSON number and
// accepts numbers or numeric strings. A missing or unparsable amount is
// kept as unset rather than failing the whole record.
type Amount struct {
	value decimal.Decimal
	set   bool
}

// NewAmount returns a set amount.
func NewAmount(d decimal.Decimal) Amount { return Amount{value: d, set: true} }

// ParseAmount parses a decimal string such as "12.50".
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, faults.Serialization(err, "parse amount "+strconv.Quote(s))
	}
	return NewAmount(d), nil
}

// AmountFromFloat is a convenience for tests and literals.
func AmountFromFloat(f float64) Amount { return NewAmount(decimal.NewFromFloat(f)) }

func (a Amount) IsSet() bool              { return a.set }
func (a Amount) Decimal() decimal.Decimal { return a.value }

func (a Amount) Equal(b Amount) bool {
	return a.set == b.set && (!a.set || a.value.Equal(b.value))
}

func (a Amount) String() string {
	if !a.set {
		return ""
	}
	return a.value.String()
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.set {
		return []byte("null"), nil
	}
	return []byte(a.value.String()), nil
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	*a = Amount{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
	}
	if d, err := decimal.NewFromString(s); err == nil {
		*a = NewAmount(d)
	}
	return nil
}

// Now returns the current unix time in seconds, the unit CreatedAt uses.
func Now() int64 { return time.Now().Unix() }
