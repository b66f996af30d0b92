package domain

import "time"

// Weekday follows the Places API convention: 0 is Sunday, 6 is Saturday.
type Weekday int

const (
	Sunday Weekday = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

var weekdayNames = [...]string{
	"Domingo",
	"Segunda-feira",
	"Terça-feira",
	"Quarta-feira",
	"Quinta-feira",
	"Sexta-feira",
	"Sábado",
}

// Valid reports whether d is in the 0..6 range.
func (d Weekday) Valid() bool { return d >= Sunday && d <= Saturday }

// Name returns the pt-BR day name stored in opening_hours.day_of_week.
func (d Weekday) Name() string {
	if !d.Valid() {
		return ""
	}
	return weekdayNames[d]
}

// WeekdayFromName is the inverse of Name.
func WeekdayFromName(name string) (Weekday, bool) {
	for i, n := range weekdayNames {
		if n == name {
			return Weekday(i), true
		}
	}
	return 0, false
}

// Address holds the structured street address columns. Unknown parts are nil.
type Address struct {
	StreetType         *string `json:"street_type,omitempty"`
	StreetName         *string `json:"street_name,omitempty"`
	StreetNumber       *string `json:"street_number,omitempty"`
	StreetComplement   *string `json:"street_complement,omitempty"`
	StreetNeighborhood *string `json:"street_neighborhood,omitempty"`
	PostalCode         *string `json:"postalcode,omitempty"`
	City               *string `json:"city,omitempty"`
	State              *string `json:"state,omitempty"`
	Country            *string `json:"country,omitempty"`
}

// Restaurant is the aggregate root persisted in the restaurants table.
type Restaurant struct {
	ID                      int64
	GoogleID                string
	GoogleName              *string
	GoogleDisplayName       *string
	Address                 Address
	Latitude                *float64
	Longitude               *float64
	Rating                  *float64
	VegetarianFood          bool
	BusinessStatus          *string
	EditorialSummary        *string
	GoogleURL               *string
	Website                 *string
	OpeningHoursDescription *string
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// OpeningHours is one weekday of a restaurant schedule. OpensAt and ClosesAt
// are "HH:MM" and are nil when the restaurant is closed that day.
type OpeningHours struct {
	Day      Weekday
	OpensAt  *string
	ClosesAt *string
	IsOpened bool
}

// RestaurantType is a Google Place type tag attached to a restaurant.
type RestaurantType struct {
	Name      string
	IsPrimary bool
}

// RestaurantSnapshot is a restaurant together with its full child collections.
// Persisting a snapshot replaces whatever children were stored before.
type RestaurantSnapshot struct {
	Restaurant Restaurant
	Hours      []OpeningHours
	Types      []RestaurantType
}

// PrimaryType returns the name of the primary type, or "" when there is none.
func (s RestaurantSnapshot) PrimaryType() string {
	for _, t := range s.Types {
		if t.IsPrimary {
			return t.Name
		}
	}
	return ""
}
