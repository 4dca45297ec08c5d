package omdb

import (
	"strconv"
	"strings"
	"time"
)

// placeholder is what OMDb sends for fields it has no data for.
const placeholder = "N/A"

// releasedFormats are the date layouts OMDb has been seen to use.
var releasedFormats = []string{"02 Jan 2006", "2006-01-02"}

// cleanPayload coerces the wire payload's text fields into typed metadata.
// Placeholders become nil rather than being stored literally.
func cleanPayload(p payload) *Metadata {
	return &Metadata{
		ImdbID:         p.ImdbID,
		Title:          p.Title,
		Year:           parseYear(p.Year),
		Director:       cleanText(p.Director),
		Plot:           cleanText(p.Plot),
		BoxOffice:      cleanText(p.BoxOffice),
		Released:       parseReleased(p.Released),
		RuntimeMinutes: parseRuntime(p.Runtime),
	}
}

// cleanText returns nil for empty strings and the "N/A" placeholder.
func cleanText(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" || s == placeholder {
		return nil
	}
	return &s
}

// parseRuntime turns a runtime string like "120 min" into integer minutes.
func parseRuntime(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" || s == placeholder || !strings.Contains(s, "min") {
		return nil
	}
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	minutes, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil
	}
	return &minutes
}

// parseReleased normalizes a release date into ISO form ("2006-01-02").
func parseReleased(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" || s == placeholder {
		return nil
	}
	for _, layout := range releasedFormats {
		if t, err := time.Parse(layout, s); err == nil {
			iso := t.Format("2006-01-02")
			return &iso
		}
	}
	return nil
}

// parseYear reads the leading year out of strings like "1995" or "1995–1998".
func parseYear(s string) *int {
	s = strings.TrimSpace(s)
	if len(s) < 4 {
		return nil
	}
	year, err := strconv.Atoi(s[:4])
	if err != nil {
		return nil
	}
	return &year
}
