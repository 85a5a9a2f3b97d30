package expense

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

// Validation messages shown next to the form fields.
const (
	MessageTitleRequired    = "Please enter title"
	MessageAmountRequired   = "Please enter amount"
	MessageCategoryRequired = "Please select a category"
	MessageAmountNegative   = "Amount must not be negative"
	MessageCategoryUnknown  = "Please select a valid category"
)

// Draft is a partial expense used as a create or update payload. Nil fields
// are left out of the JSON body.
type Draft struct {
	Title     *string `json:"title,omitempty"`
	Amount    *Amount `json:"amount,omitempty"`
	Category  *string `json:"category,omitempty"`
	Notes     *string `json:"notes,omitempty"`
	CreatedAt *int64  `json:"createdAt,omitempty"`
}

// String returns a pointer to s, for building drafts.
func String(s string) *string { return &s }

// Stamp sets CreatedAt to now when the draft carries no timestamp.
func (d Draft) Stamp(now time.Time) Draft {
	if d.CreatedAt == nil {
		ts := now.Unix()
		d.CreatedAt = &ts
	}
	return d
}

// Apply returns e with the fields set in d.
func (d Draft) Apply(e Expense) Expense {
	if d.Title != nil {
		e.Title = *d.Title
	}
	if d.Amount != nil {
		e.Amount = *d.Amount
	}
	if d.Category != nil {
		e.Category = *d.Category
	}
	if d.Notes != nil {
		e.Notes = *d.Notes
	}
	if d.CreatedAt != nil {
		e.CreatedAt = *d.CreatedAt
	}
	return e
}

// ValidateCreate checks a draft for a new expense: title, amount and
// category are required.
func (d Draft) ValidateCreate() error {
	err := validation.ValidateStruct(&d,
		validation.Field(&d.Title, validation.Required.Error(MessageTitleRequired), validation.By(notBlank(MessageTitleRequired))),
		validation.Field(&d.Amount, validation.Required.Error(MessageAmountRequired), validation.By(validAmount)),
		validation.Field(&d.Category, validation.Required.Error(MessageCategoryRequired), categoryRule()),
	)
	if err == nil {
		return nil
	}
	return goerrors.FromOzzoValidation(err, "invalid expense")
}

// ValidateUpdate checks only the fields the draft sets.
func (d Draft) ValidateUpdate() error {
	err := validation.ValidateStruct(&d,
		validation.Field(&d.Title, validation.NilOrNotEmpty.Error(MessageTitleRequired), validation.By(notBlank(MessageTitleRequired))),
		validation.Field(&d.Amount, validation.By(validAmount)),
		validation.Field(&d.Category, validation.NilOrNotEmpty.Error(MessageCategoryRequired), categoryRule()),
	)
	if err == nil {
		return nil
	}
	return goerrors.FromOzzoValidation(err, "invalid expense update")
}

func notBlank(message string) validation.RuleFunc {
	return func(value any) error {
		s, ok := value.(*string)
		if !ok || s == nil {
			return nil
		}
		if strings.TrimSpace(*s) == "" {
			return validation.NewError("validation_blank", message)
		}
		return nil
	}
}

func validAmount(value any) error {
	a, ok := value.(*Amount)
	if !ok || a == nil {
		return nil
	}
	if !a.IsSet() {
		return validation.NewError("validation_required", MessageAmountRequired)
	}
	if a.Decimal().IsNegative() {
		return validation.NewError("validation_negative", MessageAmountNegative)
	}
	return nil
}

func categoryRule() validation.Rule {
	values := make([]any, len(categories))
	for i, c := range categories {
		values[i] = c
	}
	return validation.In(values...).Error(MessageCategoryUnknown)
}
