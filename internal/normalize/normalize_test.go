package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "  Build   things ", "Build things"},
		{"html", "<p>Build <b>Go</b> services</p><ul><li>Kafka</li><li>Postgres</li></ul>", "Build Go services Kafka Postgres"},
		{"double encoded", "&lt;p&gt;Hello&amp;nbsp;world&lt;/p&gt;", "Hello world"},
		{"script dropped", "<div>Keep</div><script>alert(1)</script>", "Keep"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Text(tt.in))
		})
	}
}

func TestFoldAndTokens(t *testing.T) {
	assert.Equal(t, "montreal, quebec", Fold("  Montréal,   Québec "))
	assert.Equal(t, []string{"c++", "c#", "node.js", "go"}, Tokens("C++, C# / Node.js & Go."))
	assert.Equal(t, []string{"build", "go", "services"}, Terms("Build the Go services and the go services"))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "senior software engineer", TitleKey("Sr. Software Engineer"))
	assert.Equal(t, TitleKey("Senior Software Engineer"), TitleKey("SR Software  Engineer"))
	assert.Equal(t, "acme", CompanyKey("Acme, Inc."))
	assert.Equal(t, "acme", CompanyKey("ACME LLC"))
	assert.Equal(t, "austin tx", LocationKey("Austin, Texas, United States"))
	assert.Equal(t, "a|b|c", Signature("a", "b", "c"))
}

func TestContentHash_StableAndSeparated(t *testing.T) {
	assert.Equal(t, ContentHash("a", "b"), ContentHash("a", "b"))
	assert.NotEqual(t, ContentHash("ab", ""), ContentHash("a", "b"))
	assert.Len(t, ContentHash("x"), 64)
}

func TestURL(t *testing.T) {
	assert.Equal(t,
		"https://boards.greenhouse.io/acme/jobs/123",
		URL("http://www.Boards.Greenhouse.io/acme/jobs/123/?gh_src=abc&utm_source=li#apply"))
	assert.Equal(t,
		URL("https://jobs.lever.co/acme/x?lever-source=linkedin"),
		URL("https://jobs.lever.co/acme/x"))
	assert.Equal(t, "", URL("  "))
}

func TestEmploymentType(t *testing.T) {
	tests := map[string]string{
		"Full-time":  FullTime,
		"FullTime":   FullTime,
		"full_time":  FullTime,
		"Part Time":  PartTime,
		"Contractor": Contract,
		"Intern":     Internship,
		"Temporary":  Temporary,
		"":           "",
		"Whatever":   "",
	}
	for in, want := range tests {
		assert.Equal(t, want, EmploymentType(in), "input %q", in)
	}
}

func TestLocation(t *testing.T) {
	tests := map[string]string{
		"Austin, Texas, United States": "Austin, TX",
		"Austin, tx":                   "Austin, TX",
		"austin, TX, USA":              "austin, TX",
		"REMOTE - USA":                 "Remote, US",
		"Remote":                       "Remote",
		"Remote (Canada)":              "Remote, Canada",
		"New York; Remote; New York":   "New York; Remote",
		"London, United Kingdom":       "London, United Kingdom",
		"":                             "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Location(in), "input %q", in)
	}
}

func TestPostedDate(t *testing.T) {
	ref := time.Date(2026, 5, 20, 15, 30, 0, 0, time.UTC)
	day := func(d int) time.Time { return time.Date(2026, 5, d, 0, 0, 0, 0, time.UTC) }

	explicit := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))
	got := PostedDate(&explicit, "Posted Today", ref)
	require.NotNil(t, got)
	assert.True(t, got.Equal(explicit))

	tests := []struct {
		text string
		want *time.Time
	}{
		{"Posted Today", ptr(day(20))},
		{"Posted Yesterday", ptr(day(19))},
		{"Posted 3 Days Ago", ptr(day(17))},
		{"Posted 30+ Days Ago", nil},
		{"2026-04-01", ptr(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))},
		{"5 hours ago", ptr(ref.Add(-5 * time.Hour))},
		{"sometime", nil},
		{"", nil},
	}
	for _, tt := range tests {
		got := PostedDate(nil, tt.text, ref)
		if tt.want == nil {
			assert.Nil(t, got, "text %q", tt.text)
			continue
		}
		require.NotNil(t, got, "text %q", tt.text)
		assert.True(t, tt.want.Equal(*got), "text %q: want %v got %v", tt.text, tt.want, got)
	}
}

func TestSalary(t *testing.T) {
	tests := []struct {
		in       string
		min, max float64
		currency string
	}{
		{"$90,000 - $120,000/yr", 90000, 120000, "USD"},
		{"$140K – $170K", 140000, 170000, "USD"},
		{"€50k–60k per year", 50000, 60000, "EUR"},
		{"$90-120k", 90000, 120000, "USD"},
		{"£45,000", 45000, 45000, "GBP"},
		{"$45/hr", 93600, 93600, "USD"},
		{"CA$8,000 per month", 96000, 96000, "CAD"},
		{"USD 100000 to 80000", 80000, 100000, "USD"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			s := Salary(tt.in)
			require.NotNil(t, s)
			assert.Equal(t, tt.min, s.Min)
			assert.Equal(t, tt.max, s.Max)
			assert.Equal(t, tt.currency, s.Currency)
		})
	}

	assert.Nil(t, Salary("Competitive"))
	assert.Nil(t, Salary(""))
}

func TestSalaryFromText(t *testing.T) {
	s := SalaryFromText("We offer a 401k match. The base range is $120,000 - $150,000 per year plus equity.")
	require.NotNil(t, s)
	assert.Equal(t, 120000.0, s.Min)
	assert.Equal(t, 150000.0, s.Max)

	assert.Nil(t, SalaryFromText("Great benefits and a 401k."))
}

func ptr(t time.Time) *time.Time { return &t }
