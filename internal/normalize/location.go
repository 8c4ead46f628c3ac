package normalize

import (
	"strings"
)

var usStates = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR", "california": "CA",
	"colorado": "CO", "connecticut": "CT", "delaware": "DE", "florida": "FL", "georgia": "GA",
	"hawaii": "HI", "idaho": "ID", "illinois": "IL", "indiana": "IN", "iowa": "IA",
	"kansas": "KS", "kentucky": "KY", "louisiana": "LA", "maine": "ME", "maryland": "MD",
	"massachusetts": "MA", "michigan": "MI", "minnesota": "MN", "mississippi": "MS", "missouri": "MO",
	"montana": "MT", "nebraska": "NE", "nevada": "NV", "new hampshire": "NH", "new jersey": "NJ",
	"new mexico": "NM", "new york": "NY", "north carolina": "NC", "north dakota": "ND", "ohio": "OH",
	"oklahoma": "OK", "oregon": "OR", "pennsylvania": "PA", "rhode island": "RI", "south carolina": "SC",
	"south dakota": "SD", "tennessee": "TN", "texas": "TX", "utah": "UT", "vermont": "VT",
	"virginia": "VA", "washington": "WA", "west virginia": "WV", "wisconsin": "WI", "wyoming": "WY",
	"district of columbia": "DC",
}

var stateCodes = func() map[string]bool {
	m := make(map[string]bool, len(usStates))
	for _, code := range usStates {
		m[code] = true
	}
	return m
}()

var usNames = map[string]bool{
	"us": true, "usa": true, "u.s.": true, "u.s.a.": true, "united states": true,
	"united states of america": true,
}

// Location canonicalizes a free-text location for display:
// "Austin, Texas, United States" → "Austin, TX"; "REMOTE - USA" → "Remote, US".
// Multiple locations separated by ';' or '|' are normalized individually.
func Location(s string) string {
	s = Whitespace(s)
	if s == "" {
		return ""
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == '|' })
	out := make([]string, 0, len(parts))
	seen := make(map[string]bool)
	for _, p := range parts {
		loc := singleLocation(p)
		if loc == "" || seen[loc] {
			continue
		}
		seen[loc] = true
		out = append(out, loc)
	}
	return strings.Join(out, "; ")
}

func singleLocation(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(strings.ToLower(s), "remote") {
		return remoteLocation(s)
	}

	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return ""
	}

	// Drop a trailing US country name when a state is present.
	if len(parts) >= 3 && usNames[strings.ToLower(parts[len(parts)-1])] {
		parts = parts[:len(parts)-1]
	}

	for i := 1; i < len(parts); i++ {
		if code, ok := usStates[strings.ToLower(parts[i])]; ok {
			parts[i] = code
		} else if up := strings.ToUpper(parts[i]); len(parts[i]) == 2 && stateCodes[up] {
			parts[i] = up
		}
	}
	return strings.Join(parts, ", ")
}

func remoteLocation(s string) string {
	lower := strings.ToLower(s)
	rest := strings.TrimSpace(strings.Replace(lower, "remote", "", 1))
	rest = strings.Trim(rest, " -–—,()/:")
	rest = strings.TrimSpace(strings.TrimPrefix(rest, "in "))
	switch {
	case rest == "":
		return "Remote"
	case usNames[rest]:
		return "Remote, US"
	}
	// Restore the original casing of the region.
	idx := strings.Index(lower, rest)
	if idx >= 0 && idx+len(rest) <= len(s) {
		rest = s[idx : idx+len(rest)]
	}
	return "Remote, " + rest
}
