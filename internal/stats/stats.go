// Package stats computes display-ready projections over fetched collections.
// Everything here is pure: no package state, inputs are never mutated, and
// results are recomputed from scratch on every call.
package stats

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prescripto/clinic-console/internal/api"
)

// Summary is the appointment analytics bar: counts per status plus revenue.
type Summary struct {
	Total     int     `json:"total"`
	Completed int     `json:"completed"`
	Upcoming  int     `json:"upcoming"`
	Cancelled int     `json:"cancelled"`
	Revenue   float64 `json:"revenue"`
}

// Summarize counts appointments per derived status. The three counts always
// add up to Total.
func Summarize(appts []api.Appointment) Summary {
	s := Summary{Total: len(appts)}
	for _, a := range appts {
		switch a.Status() {
		case api.StatusCompleted:
			s.Completed++
			s.Revenue += float64(a.Amount)
		case api.StatusCancelled:
			s.Cancelled++
		default:
			s.Upcoming++
		}
	}
	return s
}

// Revenue sums the amounts of completed appointments. Missing or non-numeric
// amounts decode to zero upstream, so they contribute nothing here.
func Revenue(appts []api.Appointment) float64 {
	var total float64
	for _, a := range appts {
		if a.Status() == api.StatusCompleted {
			total += float64(a.Amount)
		}
	}
	return total
}

// TrendBucket is one calendar month of the appointment trend.
type TrendBucket struct {
	Label string     `json:"label"` // short month name, e.g. "Jul"
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
	Count int        `json:"count"`
}

// MonthlyTrend buckets appointments into the trailing window of months ending
// at now's month, oldest first. Empty months are present with a zero count.
// A non-positive months falls back to 6.
func MonthlyTrend(appts []api.Appointment, now time.Time, months int) []TrendBucket {
	if months <= 0 {
		months = 6
	}

	buckets := make([]TrendBucket, 0, months)
	index := make(map[string]int, months)
	for i := months - 1; i >= 0; i-- {
		d := time.Date(now.Year(), now.Month()-time.Month(i), 1, 0, 0, 0, 0, now.Location())
		key := fmt.Sprintf("%d-%d", d.Year(), d.Month())
		index[key] = len(buckets)
		buckets = append(buckets, TrendBucket{
			Label: d.Format("Jan"),
			Year:  d.Year(),
			Month: d.Month(),
		})
	}

	for _, a := range appts {
		d, ok := AppointmentDate(a)
		if !ok {
			continue
		}
		if i, ok := index[fmt.Sprintf("%d-%d", d.Year(), d.Month())]; ok {
			buckets[i].Count++
		}
	}

	return buckets
}

// AppointmentDate resolves the date an appointment counts under: the slot
// date when it parses, otherwise the booking timestamp.
func AppointmentDate(a api.Appointment) (time.Time, bool) {
	if d, ok := ParseSlotDate(a.SlotDate); ok {
		return d, true
	}
	if a.BookedAt > 0 {
		return time.UnixMilli(a.BookedAt), true
	}
	return time.Time{}, false
}

// ParseSlotDate parses the backend's day_month_year slot date ("10_7_2025").
func ParseSlotDate(s string) (time.Time, bool) {
	parts := strings.Split(s, "_")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	day, err1 := strconv.Atoi(parts[0])
	month, err2 := strconv.Atoi(parts[1])
	year, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil || month < 1 || month > 12 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

// FormatSlotDate renders a slot date for display: "10_7_2025" becomes
// "10 July 2025". Anything that does not parse is returned unchanged.
func FormatSlotDate(s string) string {
	d, ok := ParseSlotDate(s)
	if !ok {
		return s
	}
	return fmt.Sprintf("%d %s %d", d.Day(), d.Month().String(), d.Year())
}

// FilterByPatientName returns appointments whose patient display name
// contains the query, case-insensitively. An empty query matches everything.
func FilterByPatientName(appts []api.Appointment, query string) []api.Appointment {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]api.Appointment, 0, len(appts))
	for _, a := range appts {
		if q == "" || strings.Contains(strings.ToLower(a.UserData.Name), q) {
			out = append(out, a)
		}
	}
	return out
}

// Age computes whole years between a patient's date of birth and now.
// A missing or unparseable date of birth reports ok=false; callers show an
// explicit unknown marker instead of a guess.
func Age(dateOfBirth string, now time.Time) (int, bool) {
	if dateOfBirth == "" {
		return 0, false
	}
	var born time.Time
	var err error
	for _, layout := range []string{"2006-01-02", time.RFC3339, "02/01/2006"} {
		born, err = time.Parse(layout, dateOfBirth)
		if err == nil {
			break
		}
	}
	if err != nil {
		return 0, false
	}

	years := now.Year() - born.Year()
	if now.Month() < born.Month() || (now.Month() == born.Month() && now.Day() < born.Day()) {
		years--
	}
	if years < 0 {
		return 0, false
	}
	return years, true
}

// UpcomingSoonest returns the n upcoming appointments with the nearest slot
// dates, soonest first. Appointments without a resolvable date sort last.
func UpcomingSoonest(appts []api.Appointment, n int) []api.Appointment {
	upcoming := make([]api.Appointment, 0, len(appts))
	for _, a := range appts {
		if a.Status() == api.StatusUpcoming {
			upcoming = append(upcoming, a)
		}
	}
	sort.SliceStable(upcoming, func(i, j int) bool {
		di, oki := AppointmentDate(upcoming[i])
		dj, okj := AppointmentDate(upcoming[j])
		if oki != okj {
			return oki
		}
		return di.Before(dj)
	})
	if n > 0 && len(upcoming) > n {
		upcoming = upcoming[:n]
	}
	return upcoming
}

// Distribution is the completed-vs-upcoming pie for a doctor's appointments.
func Distribution(appts []api.Appointment) []api.DistributionSlice {
	s := Summarize(appts)
	return []api.DistributionSlice{
		{Name: "Completed", Value: s.Completed},
		{Name: "Upcoming", Value: s.Upcoming},
	}
}

// UserDistribution is the doctors-vs-patients pie for the admin dashboard.
// The server-provided slices win when present.
func UserDistribution(d api.DashboardSnapshot) []api.DistributionSlice {
	if len(d.UserDistribution) > 0 {
		return d.UserDistribution
	}
	return []api.DistributionSlice{
		{Name: "Doctors", Value: d.Doctors},
		{Name: "Patients", Value: d.Patients},
	}
}

// FilterOrdersByStatus returns orders in the given delivery state. "all" or
// an empty status returns every order.
func FilterOrdersByStatus(orders []api.Order, status string) []api.Order {
	if status == "" || status == "all" {
		out := make([]api.Order, len(orders))
		copy(out, orders)
		return out
	}
	out := make([]api.Order, 0, len(orders))
	for _, o := range orders {
		if string(o.Status) == status {
			out = append(out, o)
		}
	}
	return out
}

// PaymentBadge buckets an order's payment status for display.
type PaymentBadge string

const (
	PaymentCompleted PaymentBadge = "completed"
	PaymentPending   PaymentBadge = "pending"
	PaymentFailed    PaymentBadge = "failed"
	PaymentUnknown   PaymentBadge = "unknown"
)

// ClassifyPayment maps raw payment statuses onto display badges. Failed and
// cancelled payments share a badge.
func ClassifyPayment(p api.PaymentInfo) PaymentBadge {
	switch strings.ToLower(p.Status) {
	case "completed":
		return PaymentCompleted
	case "pending":
		return PaymentPending
	case "failed", "cancelled":
		return PaymentFailed
	default:
		return PaymentUnknown
	}
}
