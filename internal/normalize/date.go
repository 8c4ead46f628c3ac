package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	daysAgoRegex  = regexp.MustCompile(`(?i)^(?:posted\s+)?(\d+)\+?\s+days?\s+ago$`)
	hoursAgoRegex = regexp.MustCompile(`(?i)^(?:posted\s+)?(\d+)\s+hours?\s+ago$`)
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

// PostedDate resolves when a posting was published. An explicit timestamp
// wins; otherwise text is parsed as an absolute date or as a relative phrase
// ("Posted Today", "Posted 3 Days Ago") anchored at ref, the collection time.
// Open-ended phrases such as "Posted 30+ Days Ago" yield nil.
func PostedDate(explicit *time.Time, text string, ref time.Time) *time.Time {
	if explicit != nil && !explicit.IsZero() {
		t := explicit.UTC()
		return &t
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			t = t.UTC()
			return &t
		}
	}

	ref = ref.UTC()
	today := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, time.UTC)
	switch strings.ToLower(text) {
	case "posted today", "today", "just posted", "posted just now":
		return &today
	case "posted yesterday", "yesterday":
		t := today.AddDate(0, 0, -1)
		return &t
	}
	if strings.Contains(text, "+") {
		return nil
	}
	if m := daysAgoRegex.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			t := today.AddDate(0, 0, -n)
			return &t
		}
	}
	if m := hoursAgoRegex.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			t := ref.Add(-time.Duration(n) * time.Hour)
			return &t
		}
	}
	return nil
}
