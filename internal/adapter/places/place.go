package places

import (
	"fmt"

	"github.com/V4T54L/ratatouille-sync/internal/domain"
)

type localizedText struct {
	Text string `json:"text"`
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type point struct {
	Day    *int `json:"day"`
	Hour   int  `json:"hour"`
	Minute int  `json:"minute"`
}

type period struct {
	Open  *point `json:"open"`
	Close *point `json:"close"`
}

type openingHours struct {
	Periods             []period `json:"periods"`
	WeekdayDescriptions []string `json:"weekdayDescriptions"`
}

type place struct {
	ID                   string         `json:"id"`
	DisplayName          *localizedText `json:"displayName"`
	FormattedAddress     string         `json:"formattedAddress"`
	Location             *latLng        `json:"location"`
	GoogleMapsURI        string         `json:"googleMapsUri"`
	Types                []string       `json:"types"`
	PrimaryType          string         `json:"primaryType"`
	WebsiteURI           string         `json:"websiteUri"`
	RegularOpeningHours  *openingHours  `json:"regularOpeningHours"`
	BusinessStatus       string         `json:"businessStatus"`
	EditorialSummary     *localizedText `json:"editorialSummary"`
	Rating               *float64       `json:"rating"`
	ServesVegetarianFood bool           `json:"servesVegetarianFood"`
}

type searchResponse struct {
	Places []struct {
		ID          string         `json:"id"`
		DisplayName *localizedText `json:"displayName"`
	} `json:"places"`
}

func (p *place) toRecord() domain.ExternalRecord {
	rec := domain.ExternalRecord{
		GoogleID:         p.ID,
		FormattedAddress: p.FormattedAddress,
		Rating:           p.Rating,
		VegetarianFood:   p.ServesVegetarianFood,
		BusinessStatus:   p.BusinessStatus,
		GoogleURL:        p.GoogleMapsURI,
		Website:          p.WebsiteURI,
	}
	if p.DisplayName != nil {
		rec.DisplayName = p.DisplayName.Text
	}
	if p.EditorialSummary != nil {
		rec.EditorialSummary = p.EditorialSummary.Text
	}
	if p.Location != nil {
		lat, lng := p.Location.Latitude, p.Location.Longitude
		rec.Latitude, rec.Longitude = &lat, &lng
	}
	if h := p.RegularOpeningHours; h != nil {
		rec.WeekdayDescriptions = h.WeekdayDescriptions
		rec.Periods = periods(h.Periods)
	}

	seen := make(map[string]bool, len(p.Types)+1)
	if p.PrimaryType != "" {
		rec.Types = append(rec.Types, domain.TypeTag{Name: p.PrimaryType, Primary: true})
		seen[p.PrimaryType] = true
	}
	for _, t := range p.Types {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		rec.Types = append(rec.Types, domain.TypeTag{Name: t})
	}
	return rec
}

// periods flattens opening periods. A single period opening Sunday at
// midnight with no close point is how an always-open place is sent; it
// expands to every day of the week.
func periods(in []period) []domain.HoursPeriod {
	if len(in) == 1 && alwaysOpen(in[0]) {
		out := make([]domain.HoursPeriod, 0, 7)
		for day := 0; day < 7; day++ {
			out = append(out, domain.HoursPeriod{Day: day, Opens: "00:00", Closes: "23:59"})
		}
		return out
	}

	var out []domain.HoursPeriod
	for _, pr := range in {
		if pr.Open == nil || pr.Open.Day == nil {
			continue
		}
		hp := domain.HoursPeriod{Day: *pr.Open.Day, Opens: clock(pr.Open)}
		if pr.Close != nil {
			hp.Closes = clock(pr.Close)
		} else {
			hp.Closes = "23:59"
		}
		out = append(out, hp)
	}
	return out
}

func alwaysOpen(pr period) bool {
	o := pr.Open
	return pr.Close == nil && o != nil && o.Day != nil && *o.Day == 0 && o.Hour == 0 && o.Minute == 0
}

func clock(pt *point) string {
	return fmt.Sprintf("%02d:%02d", pt.Hour, pt.Minute)
}
