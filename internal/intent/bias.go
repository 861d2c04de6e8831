// File: internal/intent/bias.go
package intent

import (
	"fmt"
	"strings"
)

// Bias test categories. Racial and cultural term lists are intentionally
// empty pending product/policy guidance; the categories stay in the report so
// downstream consumers see them scored at zero rather than absent.
const (
	BiasGender        = "gender"
	BiasAge           = "age"
	BiasRacial        = "racial"
	BiasCultural      = "cultural"
	BiasSocioeconomic = "socioeconomic"
)

// biasTerms maps each category to the phrases that raise its score. Each
// matched phrase adds 0.2, capped at 1.0.
var biasTerms = map[string][]string{
	BiasGender: {
		"men are", "women are", "boys are", "girls are", "like a man",
		"like a woman", "for a girl", "for a boy",
	},
	BiasAge: {
		"old people", "young people", "boomers", "too old to",
		"too young to", "millennials are",
	},
	BiasRacial:   {},
	BiasCultural: {},
	BiasSocioeconomic: {
		"poor people", "rich people", "low class", "those neighborhoods",
	},
}

// biasCategoryOrder fixes report ordering.
var biasCategoryOrder = []string{BiasGender, BiasAge, BiasRacial, BiasCultural, BiasSocioeconomic}

const perTermScore = 0.2

// runBiasTests scores the normalized input against every category and
// returns warnings for categories whose score exceeds the threshold.
func runBiasTests(normalized string, threshold float64) (map[string]float64, []string) {
	scores := make(map[string]float64, len(biasCategoryOrder))
	var warnings []string

	for _, category := range biasCategoryOrder {
		score := 0.0
		for _, term := range biasTerms[category] {
			if strings.Contains(normalized, term) {
				score += perTermScore
			}
		}
		if score > 1.0 {
			score = 1.0
		}
		scores[category] = score

		if score > threshold {
			warnings = append(warnings, fmt.Sprintf("potential %s bias detected (score %.2f)", category, score))
		}
	}
	return scores, warnings
}
