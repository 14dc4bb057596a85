package temporal

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// PartOfDay is a named period of the day with its default hour.
// PM periods convert small spoken hours to the afternoon half of the clock.
type PartOfDay struct {
	Name        string
	Keywords    []string
	DefaultHour int
	PM          bool
	// FixedHour ignores any spoken number ("noon" is always 12:00).
	FixedHour bool
}

// Lexicon holds the keywords of one spoken language.
type Lexicon struct {
	Tag         language.Tag
	Today       []string
	Tomorrow    []string
	NextWeek    []string
	Weekdays    map[string]time.Weekday
	Months      map[string]time.Month
	PartsOfDay  []PartOfDay
	NumberWords map[string]int
	Negations   []string
	// PrefixMatch accepts inflected words ("yarına", "cumartesiye") whose stem is a keyword.
	PrefixMatch bool

	weekdays []entry[time.Weekday]
	months   []entry[time.Month]
	parts    []entry[PartOfDay]
	numbers  []entry[int]
}

type entry[T any] struct {
	phrase []string
	value  T
}

// English is the default lexicon.
var English = newLexicon(Lexicon{
	Tag:      language.English,
	Today:    []string{"today"},
	Tomorrow: []string{"tomorrow"},
	NextWeek: []string{"next week"},
	Weekdays: map[string]time.Weekday{
		"monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday, "thursday": time.Thursday,
		"friday": time.Friday, "saturday": time.Saturday, "sunday": time.Sunday,
	},
	Months: map[string]time.Month{
		"january": 1, "february": 2, "march": 3, "april": 4, "may": 5, "june": 6,
		"july": 7, "august": 8, "september": 9, "october": 10, "november": 11, "december": 12,
	},
	PartsOfDay: []PartOfDay{
		{Name: "morning", Keywords: []string{"morning"}, DefaultHour: 9},
		{Name: "noon", Keywords: []string{"noon", "midday", "lunchtime"}, DefaultHour: 12, FixedHour: true},
		{Name: "afternoon", Keywords: []string{"afternoon"}, DefaultHour: 14, PM: true},
		{Name: "evening", Keywords: []string{"evening"}, DefaultHour: 19, PM: true},
		{Name: "night", Keywords: []string{"night", "tonight"}, DefaultHour: 21, PM: true},
	},
	NumberWords: map[string]int{
		"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
		"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
	},
	Negations: []string{"no", "none", "nothing", "nope"},
})

// Turkish is the lexicon of the original voice assistant.
var Turkish = newLexicon(Lexicon{
	Tag:      language.Turkish,
	Today:    []string{"bugün"},
	Tomorrow: []string{"yarın"},
	NextWeek: []string{"gelecek hafta", "önümüzdeki hafta", "haftaya"},
	Weekdays: map[string]time.Weekday{
		"pazartesi": time.Monday, "salı": time.Tuesday, "çarşamba": time.Wednesday, "perşembe": time.Thursday,
		"cuma": time.Friday, "cumartesi": time.Saturday, "pazar": time.Sunday,
	},
	Months: map[string]time.Month{
		"ocak": 1, "şubat": 2, "mart": 3, "nisan": 4, "mayıs": 5, "haziran": 6,
		"temmuz": 7, "ağustos": 8, "eylül": 9, "ekim": 10, "kasım": 11, "aralık": 12,
	},
	PartsOfDay: []PartOfDay{
		{Name: "morning", Keywords: []string{"sabah"}, DefaultHour: 9},
		{Name: "noon", Keywords: []string{"öğle", "öğlen"}, DefaultHour: 12, FixedHour: true},
		{Name: "afternoon", Keywords: []string{"öğleden sonra", "ikindi"}, DefaultHour: 14, PM: true},
		{Name: "evening", Keywords: []string{"akşam"}, DefaultHour: 19, PM: true},
		{Name: "night", Keywords: []string{"gece"}, DefaultHour: 21, PM: true},
	},
	NumberWords: map[string]int{
		"bir": 1, "iki": 2, "üç": 3, "dört": 4, "beş": 5, "altı": 6,
		"yedi": 7, "sekiz": 8, "dokuz": 9, "on": 10, "on bir": 11, "on iki": 12,
	},
	Negations:   []string{"hayır", "yok"},
	PrefixMatch: true,
})

// ForLanguage picks the lexicon for a BCP 47 language code, defaulting to English.
func ForLanguage(code string) *Lexicon {
	tag, err := language.Parse(code)
	if err != nil {
		return English
	}
	base, _ := tag.Base()
	if base.String() == "tr" {
		return Turkish
	}
	return English
}

func newLexicon(l Lexicon) *Lexicon {
	l.weekdays = sortedEntries(l.Weekdays)
	l.months = sortedEntries(l.Months)
	l.numbers = sortedEntries(l.NumberWords)
	for _, p := range l.PartsOfDay {
		for _, k := range p.Keywords {
			l.parts = append(l.parts, entry[PartOfDay]{phrase: Tokenize(k), value: p})
		}
	}
	sortByLength(l.parts)
	return &l
}

// sortedEntries orders keywords longest first so "cumartesi" wins over "cuma"
// and "öğleden sonra" over "öğle".
func sortedEntries[T any](m map[string]T) []entry[T] {
	out := make([]entry[T], 0, len(m))
	for k, v := range m {
		out = append(out, entry[T]{phrase: Tokenize(k), value: v})
	}
	sortByLength(out)
	return out
}

func sortByLength[T any](entries []entry[T]) {
	sort.SliceStable(entries, func(i, j int) bool {
		li, lj := phraseLen(entries[i].phrase), phraseLen(entries[j].phrase)
		if li != lj {
			return li > lj
		}
		return strings.Join(entries[i].phrase, " ") < strings.Join(entries[j].phrase, " ")
	})
}

func phraseLen(phrase []string) int {
	n := 0
	for _, p := range phrase {
		n += len([]rune(p)) + 1
	}
	return n
}

// Normalize trims and lower-cases text using the lexicon's case rules
// (Turkish maps "I" to "ı"). A Caser is stateful, so each call builds its own.
func (l *Lexicon) Normalize(text string) string {
	return cases.Lower(l.Tag).String(strings.TrimSpace(text))
}

// Tokenize splits text into letter/digit words.
func Tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// IsNegation reports whether a normalized answer declines ("no", "hayır").
func (l *Lexicon) IsNegation(text string) bool {
	tokens := Tokenize(l.Normalize(text))
	for _, n := range l.Negations {
		if l.contains(tokens, Tokenize(n)) >= 0 {
			return true
		}
	}
	return false
}

func (l *Lexicon) containsAny(tokens []string, phrases []string) bool {
	for _, p := range phrases {
		if l.contains(tokens, Tokenize(p)) >= 0 {
			return true
		}
	}
	return false
}

// contains returns the token index where phrase starts, or -1.
func (l *Lexicon) contains(tokens, phrase []string) int {
	if len(phrase) == 0 || len(phrase) > len(tokens) {
		return -1
	}
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		matched := true
		for j, word := range phrase {
			if !l.wordMatches(tokens[i+j], word) {
				matched = false
				break
			}
		}
		if matched {
			return i
		}
	}
	return -1
}

func (l *Lexicon) wordMatches(token, word string) bool {
	if l.PrefixMatch {
		return strings.HasPrefix(token, word)
	}
	return token == word
}

func lookup[T any](l *Lexicon, tokens []string, entries []entry[T]) (T, int, bool) {
	for _, e := range entries {
		if idx := l.contains(tokens, e.phrase); idx >= 0 {
			return e.value, idx, true
		}
	}
	var zero T
	return zero, -1, false
}

// numberWord returns the first spoken number word in tokens.
func (l *Lexicon) numberWord(tokens []string) (int, bool) {
	best, bestIdx := 0, -1
	for _, e := range l.numbers {
		idx := l.containsExact(tokens, e.phrase)
		if idx >= 0 && (bestIdx < 0 || idx < bestIdx) {
			best, bestIdx = e.value, idx
		}
	}
	return best, bestIdx >= 0
}

// containsExact matches whole words only; number words are short enough that
// prefix matching would misfire ("on" in "onda").
func (l *Lexicon) containsExact(tokens, phrase []string) int {
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		matched := true
		for j, word := range phrase {
			if tokens[i+j] != word {
				matched = false
				break
			}
		}
		if matched {
			return i
		}
	}
	return -1
}
