// File: internal/intent/params.go
package intent

import (
	"regexp"
	"strings"
)

var (
	// timeRe matches 24h HH:MM times.
	timeRe = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	// dateRe matches MM/DD/YYYY dates.
	dateRe = regexp.MustCompile(`\b(0?[1-9]|1[0-2])/(0?[1-9]|[12]\d|3[01])/\d{4}\b`)
	// locationRe captures "in <place>" / "at <place>" phrases. The place must
	// start with a letter so "at 18:30" never reads as a location.
	locationRe = regexp.MustCompile(`\b(?:in|at)\s+([a-z][a-z0-9]*(?:\s+[a-z][a-z0-9]*){0,3})`)
)

// locationStopwords are words that follow "in"/"at" without naming a place.
var locationStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "my": true, "this": true,
	"that": true, "least": true, "most": true, "all": true, "once": true,
}

// extractParameters pulls structured parameters out of the normalized input.
func extractParameters(normalized string) map[string]interface{} {
	params := make(map[string]interface{})

	if m := timeRe.FindString(normalized); m != "" {
		params["time"] = m
	}
	if m := dateRe.FindString(normalized); m != "" {
		params["date"] = m
	}
	if m := locationRe.FindStringSubmatch(normalized); len(m) == 2 {
		first := strings.Fields(m[1])[0]
		if !locationStopwords[first] {
			params["location"] = m[1]
		}
	}

	if len(params) == 0 {
		return nil
	}
	return params
}
