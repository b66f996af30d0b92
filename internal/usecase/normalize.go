package usecase

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/V4T54L/ratatouille-sync/internal/domain"
	"github.com/V4T54L/ratatouille-sync/internal/pkg/address"
)

var (
	postalCodeRe = regexp.MustCompile(`^\d{8}$`)
	stateRe      = regexp.MustCompile(`^[A-Z]{2}$`)
	clockRe      = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
)

// Widths of the bounded VARCHAR columns, in characters.
const (
	maxTextLen         = 255
	maxStreetTypeLen   = 50
	maxStreetNumberLen = 20
	maxCountryLen      = 100
	maxStatusLen       = 50
	maxTypeLen         = 100
)

// Normalize turns a raw record into a snapshot ready for persistence.
// Invalid optional fields are set to nil and reported; the record itself is
// never rejected here.
func Normalize(rec domain.ExternalRecord) (domain.RestaurantSnapshot, []domain.ValidationError) {
	var issues []domain.ValidationError
	invalid := func(field, value, reason string) {
		issues = append(issues, domain.ValidationError{Field: field, Value: value, Reason: reason})
	}

	r := domain.Restaurant{
		GoogleID:          strings.TrimSpace(rec.GoogleID),
		GoogleName:        optional(rec.GoogleName),
		GoogleDisplayName: optional(rec.DisplayName),
		Address:           address.Parse(rec.FormattedAddress),
		VegetarianFood:    rec.VegetarianFood,
		BusinessStatus:    optional(rec.BusinessStatus),
		EditorialSummary:  optional(rec.EditorialSummary),
	}

	if pc := r.Address.PostalCode; pc != nil && !postalCodeRe.MatchString(*pc) {
		invalid("postalcode", *pc, "expected 8 digits")
		r.Address.PostalCode = nil
	}
	if st := r.Address.State; st != nil && !stateRe.MatchString(*st) {
		invalid("state", *st, "expected two-letter UF")
		r.Address.State = nil
	}

	for _, c := range []struct {
		field string
		value **string
		max   int
	}{
		{"google_name", &r.GoogleName, maxTextLen},
		{"google_display_name", &r.GoogleDisplayName, maxTextLen},
		{"street_type", &r.Address.StreetType, maxStreetTypeLen},
		{"street_name", &r.Address.StreetName, maxTextLen},
		{"street_number", &r.Address.StreetNumber, maxStreetNumberLen},
		{"street_complement", &r.Address.StreetComplement, maxTextLen},
		{"street_neighborhood", &r.Address.StreetNeighborhood, maxTextLen},
		{"city", &r.Address.City, maxTextLen},
		{"country", &r.Address.Country, maxCountryLen},
		{"business_status", &r.BusinessStatus, maxStatusLen},
	} {
		if v := *c.value; v != nil && utf8.RuneCountInString(*v) > c.max {
			invalid(c.field, *v, fmt.Sprintf("longer than %d characters", c.max))
			*c.value = nil
		}
	}

	tags := make([]domain.TypeTag, 0, len(rec.Types))
	for _, t := range rec.Types {
		if utf8.RuneCountInString(strings.TrimSpace(t.Name)) > maxTypeLen {
			invalid("restaurant_type", t.Name, fmt.Sprintf("longer than %d characters", maxTypeLen))
			continue
		}
		tags = append(tags, t)
	}

	r.Latitude = inRange(rec.Latitude, -90, 90, "latitude", invalid)
	r.Longitude = inRange(rec.Longitude, -180, 180, "longitude", invalid)
	r.Rating = inRange(rec.Rating, 0, 5, "ratings", invalid)

	r.GoogleURL = webURL(rec.GoogleURL, "google_url", invalid)
	r.Website = webURL(rec.Website, "website", invalid)
	r.OpeningHoursDescription = describeHours(rec.WeekdayDescriptions)

	return domain.RestaurantSnapshot{
		Restaurant: r,
		Hours:      weekSchedule(rec.Periods, invalid),
		Types:      typeTags(tags),
	}, issues
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func inRange(v *float64, lo, hi float64, field string, invalid func(string, string, string)) *float64 {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || *v < lo || *v > hi {
		invalid(field, strconv.FormatFloat(*v, 'f', -1, 64), fmt.Sprintf("outside [%g, %g]", lo, hi))
		return nil
	}
	out := *v
	return &out
}

func webURL(raw, field string, invalid func(string, string, string)) *string {
	s := optional(raw)
	if s == nil {
		return nil
	}
	u, err := url.ParseRequestURI(*s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		invalid(field, *s, "not an absolute http(s) URL")
		return nil
	}
	return s
}

func describeHours(lines []string) *string {
	if len(lines) == 0 {
		return nil
	}
	cleaned := make([]string, 0, len(lines))
	for _, l := range lines {
		cleaned = append(cleaned, strings.ReplaceAll(l, "\u2009", ""))
	}
	return optional(strings.Join(cleaned, ", "))
}

// clock parses "H:MM" or "HH:MM" into minutes since midnight and its
// canonical "HH:MM" form.
func clock(s string) (int, string, bool) {
	m := clockRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, "", false
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if h > 23 || mm > 59 {
		return 0, "", false
	}
	return h*60 + mm, fmt.Sprintf("%02d:%02d", h, mm), true
}

type daySpan struct {
	seen     bool
	open     *string
	openMin  int
	close    *string
	closeMin int
}

// weekSchedule builds exactly seven rows, one per weekday, or none when the
// record carries no periods. Periods on the same day collapse to the earliest
// open and the latest close; a close at or before its open is past midnight.
func weekSchedule(periods []domain.HoursPeriod, invalid func(string, string, string)) []domain.OpeningHours {
	var days [7]daySpan
	scheduled := false
	for _, p := range periods {
		day := domain.Weekday(p.Day)
		if !day.Valid() {
			invalid("opening_hours.day", strconv.Itoa(p.Day), "expected 0 (Sunday) to 6 (Saturday)")
			continue
		}
		d := &days[day]
		d.seen, scheduled = true, true

		openMin, open, okOpen := clock(p.Opens)
		if !okOpen {
			invalid("opening_hours.opens_at", p.Opens, "expected HH:MM")
		} else if d.open == nil || openMin < d.openMin {
			d.open, d.openMin = &open, openMin
		}

		closeMin, closeAt, okClose := clock(p.Closes)
		if !okClose {
			invalid("opening_hours.closes_at", p.Closes, "expected HH:MM")
			continue
		}
		if okOpen && closeMin <= openMin {
			closeMin += 24 * 60
		}
		if d.close == nil || closeMin > d.closeMin {
			d.close, d.closeMin = &closeAt, closeMin
		}
	}
	if !scheduled {
		return nil
	}

	out := make([]domain.OpeningHours, 0, len(days))
	for i, d := range days {
		out = append(out, domain.OpeningHours{
			Day:      domain.Weekday(i),
			OpensAt:  d.open,
			ClosesAt: d.close,
			IsOpened: d.seen,
		})
	}
	return out
}

// typeTags dedupes by name and leaves exactly one primary: the first tag the
// feed flagged, or else the first tag.
func typeTags(tags []domain.TypeTag) []domain.RestaurantType {
	var out []domain.RestaurantType
	index := make(map[string]int, len(tags))
	primary := -1
	for _, t := range tags {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			continue
		}
		i, ok := index[name]
		if !ok {
			i = len(out)
			index[name] = i
			out = append(out, domain.RestaurantType{Name: name})
		}
		if t.Primary && primary < 0 {
			primary = i
		}
	}
	if len(out) == 0 {
		return nil
	}
	if primary < 0 {
		primary = 0
	}
	out[primary].IsPrimary = true
	return out
}
