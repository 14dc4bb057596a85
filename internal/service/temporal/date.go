// Package temporal resolves spoken date and time phrases into calendar values.
//
// Resolution is a pure function of (text, now). A phrase that matches no rule
// is not an error: the result keeps the raw text and reports Resolved=false so
// the caller can store what the user said verbatim.
package temporal

import (
	"regexp"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
)

// Rule names the resolution rule that produced a result.
type Rule string

const (
	RuleToday      Rule = "today"
	RuleTomorrow   Rule = "tomorrow"
	RuleNextWeek   Rule = "next_week"
	RuleWeekday    Rule = "weekday"
	RuleMonthDay   Rule = "month_day"
	RulePartOfDay  Rule = "part_of_day"
	RuleClock      Rule = "clock"
	RuleUnresolved Rule = "unresolved"
)

// DateResult is the outcome of resolving a spoken date.
type DateResult struct {
	Raw      string     `json:"raw"`
	Date     civil.Date `json:"date"`
	Resolved bool       `json:"resolved"`
	Rule     Rule       `json:"rule"`
}

// String returns the ISO date when resolved, otherwise the raw text.
func (r DateResult) String() string {
	if r.Resolved {
		return r.Date.String()
	}
	return r.Raw
}

var digitsPattern = regexp.MustCompile(`\d+`)

// Parser resolves phrases with one lexicon.
type Parser struct {
	lex *Lexicon
}

// NewParser returns a parser for lex. A nil lexicon selects English.
func NewParser(lex *Lexicon) *Parser {
	if lex == nil {
		lex = English
	}
	return &Parser{lex: lex}
}

// Lexicon returns the parser's lexicon.
func (p *Parser) Lexicon() *Lexicon {
	return p.lex
}

// ResolveDate resolves text with the English lexicon.
func ResolveDate(text string, now time.Time) DateResult {
	return NewParser(English).ResolveDate(text, now)
}

// ResolveDate tries, in order: tomorrow/today, next week, a weekday name
// (always 1 to 7 days ahead), and a month name with a day number.
func (p *Parser) ResolveDate(text string, now time.Time) DateResult {
	normalized := p.lex.Normalize(text)
	tokens := Tokenize(normalized)
	today := civil.DateOf(now)

	switch {
	case p.lex.containsAny(tokens, p.lex.Tomorrow):
		return resolvedDate(text, today.AddDays(1), RuleTomorrow)
	case p.lex.containsAny(tokens, p.lex.Today):
		return resolvedDate(text, today, RuleToday)
	case p.lex.containsAny(tokens, p.lex.NextWeek):
		return resolvedDate(text, today.AddDays(7), RuleNextWeek)
	}

	if weekday, _, ok := lookup(p.lex, tokens, p.lex.weekdays); ok {
		offset := (int(weekday) - int(now.Weekday()) + 7) % 7
		if offset == 0 {
			offset = 7
		}
		return resolvedDate(text, today.AddDays(offset), RuleWeekday)
	}

	if month, _, ok := lookup(p.lex, tokens, p.lex.months); ok {
		day := 1
		if m := digitsPattern.FindString(normalized); m != "" {
			day, _ = strconv.Atoi(m)
		} else if n, ok := p.lex.numberWord(tokens); ok {
			day = n
		}
		year := today.Year
		if month < today.Month {
			year++
		}
		d := civil.Date{Year: year, Month: month, Day: day}
		if !d.IsValid() {
			return unresolvedDate(text)
		}
		return resolvedDate(text, d, RuleMonthDay)
	}

	return unresolvedDate(text)
}

func resolvedDate(raw string, d civil.Date, rule Rule) DateResult {
	return DateResult{Raw: raw, Date: d, Resolved: true, Rule: rule}
}

func unresolvedDate(raw string) DateResult {
	return DateResult{Raw: raw, Rule: RuleUnresolved}
}
