package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/amishk599/jobcatalog/internal/model"
)

const (
	hoursPerYear  = 2080
	monthsPerYear = 12
)

var (
	amountRegex = regexp.MustCompile(`(\d{1,3}(?:,\d{3})+|\d+(?:\.\d+)?)\s?([kKmM])?`)

	// salaryWindowRegex finds a currency-anchored amount or range inside prose.
	salaryWindowRegex = regexp.MustCompile(`(?i)(?:[$€£]|\b(?:usd|eur|gbp|cad|aud)\b)\s?\d[\d,.]*\s?[km]?` +
		`(?:\s*(?:-|–|—|to)\s*(?:[$€£]|\b(?:usd|eur|gbp|cad|aud)\b)?\s?\d[\d,.]*\s?[km]?)?` +
		`(?:\s*(?:/|per|an|a)\s*(?:yr|year|annum|hr|hour|mo|month))?`)
)

var currencyCodes = []string{"USD", "EUR", "GBP", "CAD", "AUD", "INR", "CHF", "JPY", "SGD"}

// Salary parses compensation text such as "$90,000 - $120,000/yr" or
// "€50k–60k" into an annual range. Hourly and monthly amounts are annualized.
// Returns nil when no amount is present.
func Salary(text string) *model.Salary {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	matches := amountRegex.FindAllStringSubmatch(text, -1)
	var amounts []float64
	var suffixes []string
	for _, m := range matches {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil || v == 0 {
			continue
		}
		amounts = append(amounts, v)
		suffixes = append(suffixes, strings.ToLower(m[2]))
		if len(amounts) == 2 {
			break
		}
	}
	if len(amounts) == 0 {
		return nil
	}

	// "$90-120k": the multiplier on the upper bound applies to both.
	if len(amounts) == 2 && suffixes[0] == "" && suffixes[1] != "" && amounts[0] < 1000 {
		suffixes[0] = suffixes[1]
	}
	for i := range amounts {
		switch suffixes[i] {
		case "k":
			amounts[i] *= 1_000
		case "m":
			amounts[i] *= 1_000_000
		}
	}

	lo, hi := amounts[0], amounts[0]
	if len(amounts) == 2 {
		lo, hi = min(amounts[0], amounts[1]), max(amounts[0], amounts[1])
	}

	mult := periodMultiplier(text, hi)
	return &model.Salary{
		Min:      lo * mult,
		Max:      hi * mult,
		Currency: currency(text),
	}
}

// SalaryFromText scans prose for the first currency-anchored amount.
func SalaryFromText(text string) *model.Salary {
	window := salaryWindowRegex.FindString(text)
	if window == "" {
		return nil
	}
	return Salary(window)
}

func periodMultiplier(text string, hi float64) float64 {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "/hr", "/hour", "per hour", "an hour", "a hour", "hourly"):
		return hoursPerYear
	case containsAny(lower, "/mo", "per month", "a month", "monthly"):
		return monthsPerYear
	case containsAny(lower, "/yr", "/year", "per year", "a year", "annual", "per annum"):
		return 1
	}
	// Bare small numbers are hourly rates.
	if hi < 500 {
		return hoursPerYear
	}
	return 1
}

func currency(text string) string {
	upper := strings.ToUpper(text)
	for _, code := range currencyCodes {
		if strings.Contains(upper, code) {
			return code
		}
	}
	switch {
	case strings.Contains(upper, "CA$"), strings.Contains(upper, "C$"):
		return "CAD"
	case strings.Contains(upper, "A$"):
		return "AUD"
	case strings.Contains(text, "€"):
		return "EUR"
	case strings.Contains(text, "£"):
		return "GBP"
	case strings.Contains(text, "₹"):
		return "INR"
	}
	return "USD"
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
