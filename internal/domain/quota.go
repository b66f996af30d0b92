package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Month is a calendar month. It is stored in google_api_quota.month_year as
// the first day of the month.
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf returns the month containing t, in t's location.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// ParseMonth accepts "2006-01" or "2006-01-02" (the day is ignored).
func ParseMonth(s string) (Month, error) {
	for _, layout := range []string{"2006-01", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return MonthOf(t), nil
		}
	}
	return Month{}, fmt.Errorf("invalid month %q", s)
}

// FirstDay returns midnight UTC of the first day of the month.
func (m Month) FirstDay() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Next returns the following month.
func (m Month) Next() Month {
	return MonthOf(m.FirstDay().AddDate(0, 1, 0))
}

func (m Month) String() string {
	return m.FirstDay().Format("2006-01")
}

// QuotaKey scopes a quota counter to an API service and a month.
// Service labels ("Essential", "Pro", "Enterprise", ...) are opaque.
type QuotaKey struct {
	Service string
	Month   Month
}

func (k QuotaKey) String() string {
	return k.Service + "@" + k.Month.String()
}

// QuotaPeriod is the state of one google_api_quota row. Reserved counts
// admitted calls that were neither committed nor released yet; ledgers
// that hold reservations inside Used report zero.
type QuotaPeriod struct {
	Key      QuotaKey
	Limit    int
	Used     int
	Reserved int
}

// Remaining is the number of calls that may still be admitted.
func (p QuotaPeriod) Remaining() int {
	if r := p.Limit - p.Used - p.Reserved; r > 0 {
		return r
	}
	return 0
}

// QuotaLimits maps service labels to their monthly call budget.
type QuotaLimits struct {
	ByService map[string]int
	// Default applies to services missing from ByService. Zero means such
	// services have no budget.
	Default int
}

// DefaultQuotaLimits mirrors the Places API free tier per SKU family.
func DefaultQuotaLimits() QuotaLimits {
	return QuotaLimits{ByService: map[string]int{
		"Essential":  10000,
		"Pro":        5000,
		"Enterprise": 1000,
	}}
}

// Lookup returns the budget for service.
func (l QuotaLimits) Lookup(service string) (int, bool) {
	if v, ok := l.ByService[service]; ok {
		return v, true
	}
	if l.Default > 0 {
		return l.Default, true
	}
	return 0, false
}

// ParseQuotaLimits parses "Essential=10000,Pro=5000". A "*" entry sets the
// default limit.
func ParseQuotaLimits(s string) (QuotaLimits, error) {
	limits := QuotaLimits{ByService: map[string]int{}}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			return QuotaLimits{}, fmt.Errorf("quota limit %q: expected service=limit", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return QuotaLimits{}, fmt.Errorf("quota limit %q: invalid limit", part)
		}
		name = strings.TrimSpace(name)
		if name == "*" {
			limits.Default = n
			continue
		}
		limits.ByService[name] = n
	}
	return limits, nil
}
