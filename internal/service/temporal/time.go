package temporal

import (
	"regexp"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
)

// TimeResult is the outcome of resolving a spoken time of day.
type TimeResult struct {
	Raw      string     `json:"raw"`
	Time     civil.Time `json:"time"`
	Resolved bool       `json:"resolved"`
	Rule     Rule       `json:"rule"`
}

// String returns HH:MM when resolved, otherwise the raw text.
func (r TimeResult) String() string {
	if r.Resolved {
		return FormatClock(r.Time)
	}
	return r.Raw
}

// FormatClock renders t as zero-padded HH:MM.
func FormatClock(t civil.Time) string {
	return time.Date(0, 1, 1, t.Hour, t.Minute, 0, 0, time.UTC).Format("15:04")
}

var clockPattern = regexp.MustCompile(`\b(\d{1,2})(?:[:.](\d{2}))?\b`)

// ResolveTime resolves text with the English lexicon.
func ResolveTime(text string, now time.Time) TimeResult {
	return NewParser(English).ResolveTime(text, now)
}

// ResolveTime tries a part-of-day keyword with an optional number
// ("afternoon 2" is 14:00), then an explicit HH[:MM] clock.
// The instant is accepted for symmetry with ResolveDate; no rule depends on it.
func (p *Parser) ResolveTime(text string, _ time.Time) TimeResult {
	normalized := p.lex.Normalize(text)
	tokens := Tokenize(normalized)

	if part, _, ok := lookup(p.lex, tokens, p.lex.parts); ok {
		hour, minute := part.DefaultHour, 0
		if !part.FixedHour {
			if h, m, ok := p.spokenClock(normalized, tokens); ok {
				hour, minute = h, m
				if part.PM {
					hour = toAfternoon(part, hour)
				}
			}
		}
		return clockResult(text, hour, minute, RulePartOfDay)
	}

	if h, m, ok := p.spokenClock(normalized, tokens); ok {
		return clockResult(text, h, m, RuleClock)
	}

	return unresolvedTime(text)
}

// spokenClock finds the first HH[:MM] digits, falling back to a number word.
func (p *Parser) spokenClock(normalized string, tokens []string) (int, int, bool) {
	if m := clockPattern.FindStringSubmatch(normalized); m != nil {
		hour, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, 0, false
		}
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		return hour, minute, true
	}
	if n, ok := p.lex.numberWord(tokens); ok {
		return n, 0, true
	}
	return 0, 0, false
}

// toAfternoon moves a 12-hour clock reading into the PM half.
// Twelve at night is midnight; twelve in the afternoon stays noon.
func toAfternoon(part PartOfDay, hour int) int {
	switch {
	case hour == 12 && part.Name == "night":
		return 0
	case hour < 12:
		return hour + 12
	default:
		return hour
	}
}

func clockResult(raw string, hour, minute int, rule Rule) TimeResult {
	t := civil.Time{Hour: hour, Minute: minute}
	if !t.IsValid() {
		return unresolvedTime(raw)
	}
	return TimeResult{Raw: raw, Time: t, Resolved: true, Rule: rule}
}

func unresolvedTime(raw string) TimeResult {
	return TimeResult{Raw: raw, Rule: RuleUnresolved}
}
