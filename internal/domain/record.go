package domain

// ExternalRecord is a restaurant as delivered by an external source (Places
// API, NDJSON dump, deferred spool). Fields are raw: nothing here has been
// validated yet.
type ExternalRecord struct {
	GoogleID            string        `json:"google_id"`
	GoogleName          string        `json:"google_name,omitempty"`
	DisplayName         string        `json:"google_display_name,omitempty"`
	FormattedAddress    string        `json:"address,omitempty"`
	Latitude            *float64      `json:"latitude,omitempty"`
	Longitude           *float64      `json:"longitude,omitempty"`
	Rating              *float64      `json:"ratings,omitempty"`
	VegetarianFood      bool          `json:"vegetarian_food,omitempty"`
	BusinessStatus      string        `json:"business_status,omitempty"`
	EditorialSummary    string        `json:"editorial_summary,omitempty"`
	GoogleURL           string        `json:"google_url,omitempty"`
	Website             string        `json:"website,omitempty"`
	WeekdayDescriptions []string      `json:"opening_hours_description,omitempty"`
	Periods             []HoursPeriod `json:"opening_hours,omitempty"`
	Types               []TypeTag     `json:"restaurant_types,omitempty"`
}

// HoursPeriod is one opening interval. Opens and Closes are "HH:MM".
type HoursPeriod struct {
	Day    int    `json:"day_of_the_week"`
	Opens  string `json:"opens"`
	Closes string `json:"closes"`
}

// TypeTag is a type classification; Primary is the source feed's own flag.
type TypeTag struct {
	Name    string `json:"name"`
	Primary bool   `json:"primary,omitempty"`
}

// Label identifies the record in logs and reports.
func (r ExternalRecord) Label() string {
	if r.GoogleID != "" {
		return r.GoogleID
	}
	return r.GoogleName
}
