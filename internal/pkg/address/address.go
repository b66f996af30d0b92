// Package address splits a Brazilian formatted address, as returned by the
// Places API, into the structured columns of the restaurants table.
//
// The expected shape is
//
//	<type> <name>, <number> - <neighborhood>, <city> - <UF>, <CEP>, <country>
//
// with any extra comma separated parts between number and neighborhood
// treated as complement. Parts that cannot be recognized are left nil.
package address

import (
	"regexp"
	"strings"

	"github.com/V4T54L/ratatouille-sync/internal/domain"
)

// StreetTypes are matched as prefixes of the first part, in this order.
var StreetTypes = []string{
	"Avenida", "Rua", "Alameda", "Travessa", "Praça",
	"Rodovia", "Estrada", "Viela", "Largo", "Beco",
	"Av.", "Al.", "R.", "Tv.", "Pç.",
}

var (
	countryRe     = regexp.MustCompile(`,\s*([^,]+)$`)
	postalCodeRe  = regexp.MustCompile(`\b(\d{5}-?\d{3})\b`)
	stateRe       = regexp.MustCompile(`-\s*([A-Z]{2})\s*,?\s*$`)
	leadingDashRe = regexp.MustCompile(`^\s*-\s*`)
	edgeDashRe    = regexp.MustCompile(`^\s*-\s*|\s*-\s*$`)
	numberOnlyRe  = regexp.MustCompile(`^\d+[A-Za-z]?$`)
	numberDashRe  = regexp.MustCompile(`^(\d+[A-Za-z]?)\s*-\s*(.+)$`)
	numberSpaceRe = regexp.MustCompile(`^(\d+[A-Za-z]?)\s+(.+)$`)
)

// Parse never fails; an empty input yields an Address with every part nil.
func Parse(formatted string) domain.Address {
	var a domain.Address
	s := strings.Join(strings.Fields(formatted), " ")
	if s == "" {
		return a
	}

	if loc := countryRe.FindStringSubmatchIndex(s); loc != nil {
		a.Country = ptr(s[loc[2]:loc[3]])
		s = strings.TrimSpace(s[:loc[0]])
	}

	if m := postalCodeRe.FindStringSubmatch(s); m != nil {
		a.PostalCode = ptr(strings.ReplaceAll(m[1], "-", ""))
		s = strings.Trim(strings.ReplaceAll(s, m[0], ""), " ,")
	}

	if loc := stateRe.FindStringSubmatchIndex(s); loc != nil {
		a.State = ptr(s[loc[2]:loc[3]])
		s = strings.TrimSpace(s[:loc[0]])
	}

	if s != "" {
		if i := strings.LastIndex(s, ","); i >= 0 {
			a.City = ptr(s[i+1:])
			s = strings.TrimSpace(s[:i])
		} else {
			a.City = ptr(s)
			s = ""
		}
	}

	var parts []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return a
	}

	street := parts[0]
	for _, st := range StreetTypes {
		if strings.HasPrefix(street, st) {
			a.StreetType = ptr(st)
			street = street[len(st):]
			break
		}
	}
	a.StreetName = ptr(street)
	parts = parts[1:]

	if len(parts) > 0 {
		candidate := strings.TrimSpace(leadingDashRe.ReplaceAllString(parts[0], ""))
		switch {
		case numberOnlyRe.MatchString(candidate):
			a.StreetNumber = ptr(candidate)
			parts = parts[1:]
		case numberDashRe.MatchString(candidate):
			m := numberDashRe.FindStringSubmatch(candidate)
			a.StreetNumber = ptr(m[1])
			parts[0] = m[2]
		case numberSpaceRe.MatchString(candidate):
			m := numberSpaceRe.FindStringSubmatch(candidate)
			a.StreetNumber = ptr(m[1])
			parts[0] = m[2]
		}
	}

	if len(parts) == 0 {
		return a
	}

	// "loja 14 - Consolação": the text after the last " - " is the neighborhood.
	last := strings.TrimSpace(leadingDashRe.ReplaceAllString(parts[len(parts)-1], ""))
	if i := strings.LastIndex(last, " - "); i >= 0 {
		a.StreetNeighborhood = ptr(last[i+3:])
		if before := strings.TrimSpace(last[:i]); before != "" {
			parts[len(parts)-1] = before
		} else {
			parts = parts[:len(parts)-1]
		}
	} else {
		a.StreetNeighborhood = ptr(last)
		parts = parts[:len(parts)-1]
	}

	var complement []string
	for _, p := range parts {
		if p = strings.TrimSpace(edgeDashRe.ReplaceAllString(p, "")); p != "" {
			complement = append(complement, p)
		}
	}
	if len(complement) > 0 {
		a.StreetComplement = ptr(strings.Join(complement, " - "))
	}
	return a
}

func ptr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
