package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

var titleAbbreviations = map[string]string{
	"sr":   "senior",
	"snr":  "senior",
	"jr":   "junior",
	"eng":  "engineer",
	"engr": "engineer",
	"mgr":  "manager",
	"dev":  "developer",
	"swe":  "software engineer",
	"sde":  "software development engineer",
	"ii":   "2",
	"iii":  "3",
	"iv":   "4",
}

// TitleKey normalizes a job title for matching.
func TitleKey(title string) string {
	tokens := Tokens(title)
	for i, t := range tokens {
		if full, ok := titleAbbreviations[t]; ok {
			tokens[i] = full
		}
	}
	return strings.Join(tokens, " ")
}

var companySuffixes = map[string]bool{
	"inc": true, "llc": true, "ltd": true, "limited": true, "corp": true, "corporation": true,
	"co": true, "company": true, "gmbh": true, "plc": true, "sa": true, "ag": true, "bv": true,
}

// CompanyKey normalizes a company name, dropping legal suffixes.
func CompanyKey(company string) string {
	tokens := Tokens(company)
	for len(tokens) > 1 && companySuffixes[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

// LocationKey normalizes a display location (see Location) for matching.
func LocationKey(location string) string {
	return strings.Join(Tokens(Location(location)), " ")
}

// Signature is the candidate signature used for exact matching and
// per-signature serialization.
func Signature(titleKey, companyKey, locationKey string) string {
	return titleKey + "|" + companyKey + "|" + locationKey
}

// ContentHash fingerprints the canonical fields for change detection.
func ContentHash(fields ...string) string {
	h := sha256.New()
	for _, f := range fields {
		h.Write([]byte(f))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

var trackingParams = []string{"utm_", "gh_src", "gh_jid", "lever-source", "lever-origin", "source", "ref"}

// URL canonicalizes an application URL for identity comparison: scheme and
// host lowercased, tracking parameters and fragment dropped, trailing slash trimmed.
func URL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimRight(strings.ToLower(raw), "/")
	}
	u.Scheme = "https"
	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	u.Fragment = ""

	q := u.Query()
	for key := range q {
		lk := strings.ToLower(key)
		for _, p := range trackingParams {
			if lk == p || (strings.HasSuffix(p, "_") && strings.HasPrefix(lk, p)) {
				q.Del(key)
				break
			}
		}
	}
	u.RawQuery = q.Encode()
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}

// Employment types.
const (
	FullTime   = "full_time"
	PartTime   = "part_time"
	Contract   = "contract"
	Internship = "internship"
	Temporary  = "temporary"
)

// EmploymentType maps source wording onto a fixed set, or "" when unknown.
func EmploymentType(s string) string {
	k := strings.Join(Tokens(strings.NewReplacer("-", " ", "_", " ").Replace(s)), "")
	switch {
	case k == "":
		return ""
	case strings.Contains(k, "intern"):
		return Internship
	case strings.Contains(k, "fulltime"), k == "permanent", k == "regular":
		return FullTime
	case strings.Contains(k, "parttime"):
		return PartTime
	case strings.Contains(k, "contract"), strings.Contains(k, "freelance"):
		return Contract
	case strings.Contains(k, "temp"), strings.Contains(k, "seasonal"):
		return Temporary
	}
	return ""
}
