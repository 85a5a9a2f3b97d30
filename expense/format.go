package expense

import "time"

// CreatedAtLayout renders timestamps like "Mar 4 2024, 6:05 PM".
const CreatedAtLayout = "Jan 2 2006, 3:04 PM"

// FormatAmount renders an amount as "$ 12.50". Unset amounts render as
// "$ 0.00".
func FormatAmount(a Amount) string {
	if !a.IsSet() {
		return "$ 0.00"
	}
	return "$ " + a.Decimal().StringFixed(2)
}

// FormatCreatedAt renders a unix timestamp in loc. A nil loc means local time.
func FormatCreatedAt(unix int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return time.Unix(unix, 0).In(loc).Format(CreatedAtLayout)
}
