package quality

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/amishk599/jobcatalog/internal/model"
)

func TestScore(t *testing.T) {
	assert.Equal(t, 0.0, OfStaged(&model.StagedJob{}))

	posted := time.Now()
	full := &model.StagedJob{
		Description: strings.Repeat("x", 2000),
		Salary:      &model.Salary{Min: 1, Max: 2, Currency: "USD"},
		Location:    "Remote",
		PostedAt:    &posted,
		Skills:      []string{"a", "b", "c", "d", "e", "f"},
		ApplyURL:    "https://x",
	}
	assert.Equal(t, 1.0, OfStaged(full))

	half := Score(Fields{Description: strings.Repeat("x", 750), Location: "Berlin"})
	assert.Equal(t, 0.275, half)
}

func TestOfCanonicalMatchesStaged(t *testing.T) {
	s := &model.StagedJob{Description: "go and kafka", Location: "Remote", Skills: []string{"Go", "Kafka"}, URL: "https://x"}
	j := &model.CanonicalJob{Description: s.Description, Location: s.Location, Skills: s.Skills, URL: s.URL}
	assert.Equal(t, OfStaged(s), OfCanonical(j))
}
