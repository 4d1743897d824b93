// Package textnorm rewrites target text into a form the speech model reads aloud
// naturally: abbreviations and integers spelled out, typographic punctuation
// flattened, whitespace collapsed.
package textnorm

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	baseTen      = 10
	baseTwenty   = 20
	baseHundred  = 100
	baseThousand = 1000
	// MaxSpelledNumber is the largest integer spelled out; larger ones are kept as digits.
	MaxSpelledNumber = 999999
)

const (
	urlPattern        = `https?://\S+`
	emailPattern      = `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`
	numberPattern     = `\d+`
	whitespacePattern = `\s+`
	placeholderMark   = "\x00"
	alphabetSize      = 26
)

var (
	ones = []string{
		"", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine",
	}
	teens = []string{
		"ten", "eleven", "twelve", "thirteen", "fourteen",
		"fifteen", "sixteen", "seventeen", "eighteen", "nineteen",
	}
	tens = []string{
		"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety",
	}
)

// Normalizer holds the compiled patterns. It is safe for concurrent use.
type Normalizer struct {
	url          *regexp.Regexp
	email        *regexp.Regexp
	number       *regexp.Regexp
	whitespace   *regexp.Regexp
	abbreviation *strings.Replacer
	punctuation  *strings.Replacer
}

// New creates a Normalizer.
func New() *Normalizer {
	return &Normalizer{
		url:        regexp.MustCompile(urlPattern),
		email:      regexp.MustCompile(emailPattern),
		number:     regexp.MustCompile(numberPattern),
		whitespace: regexp.MustCompile(whitespacePattern),
		abbreviation: strings.NewReplacer(
			"Mr.", "Mister",
			"Mrs.", "Misses",
			"Ms.", "Miss",
			"Dr.", "Doctor",
			"St.", "Saint",
			"Co.", "Company",
			"Ltd.", "Limited",
			"Corp.", "Corporation",
			"Inc.", "Incorporated",
		),
		punctuation: strings.NewReplacer(
			"—", "-",
			"–", "-",
			"‒", "-",
			"…", "...",
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
	}
}

// Normalize returns the spoken form of text. Empty or blank input yields "".
func (n *Normalizer) Normalize(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	protected, restore := n.protect(text)

	protected = n.abbreviation.Replace(protected)
	protected = n.number.ReplaceAllStringFunc(protected, func(digits string) string {
		value, err := strconv.Atoi(digits)
		if err != nil {
			return digits
		}

		return SpellInteger(value)
	})
	protected = n.punctuation.Replace(protected)
	protected = collapseRepeats(protected)
	protected = strings.TrimSpace(n.whitespace.ReplaceAllString(protected, " "))

	return terminate(restore(protected))
}

// protect swaps URLs and e-mail addresses for placeholders so that later
// rewrites leave them intact.
func (n *Normalizer) protect(text string) (string, func(string) string) {
	var originals []string

	swap := func(match string) string {
		originals = append(originals, match)

		return placeholder(len(originals) - 1)
	}

	text = n.url.ReplaceAllStringFunc(text, swap)
	text = n.email.ReplaceAllStringFunc(text, swap)

	return text, func(s string) string {
		for i, original := range originals {
			s = strings.Replace(s, placeholder(i), original, 1)
		}

		return s
	}
}

// placeholder encodes index in letters so the number rewrite cannot touch it.
func placeholder(index int) string {
	var letters []byte

	for {
		letters = append(letters, byte('a'+index%alphabetSize))

		index /= alphabetSize
		if index == 0 {
			break
		}
	}

	return placeholderMark + string(letters) + placeholderMark
}

// collapseRepeats keeps the first of consecutive identical punctuation marks,
// except periods, so that an ellipsis survives.
func collapseRepeats(text string) string {
	var (
		builder strings.Builder
		last    rune
	)

	builder.Grow(len(text))

	for _, char := range text {
		if char == last && char != '.' && unicode.IsPunct(char) {
			continue
		}

		builder.WriteRune(char)
		last = char
	}

	return builder.String()
}

func terminate(text string) string {
	if text == "" {
		return ""
	}

	switch lastChar, _ := utf8.DecodeLastRuneInString(text); lastChar {
	case '.', '!', '?':
		return text
	default:
		return text + "."
	}
}

// SpellInteger returns the English words for number. Values outside
// [0, MaxSpelledNumber] are returned as digits.
func SpellInteger(number int) string {
	if number < 0 || number > MaxSpelledNumber {
		return strconv.Itoa(number)
	}

	if number == 0 {
		return "zero"
	}

	var parts []string

	if thousands := number / baseThousand; thousands > 0 {
		parts = append(parts, spellUnderThousand(thousands)+" thousand")
	}

	if rest := number % baseThousand; rest > 0 {
		parts = append(parts, spellUnderThousand(rest))
	}

	return strings.Join(parts, " ")
}

func spellUnderThousand(number int) string {
	hundreds := number / baseHundred
	rest := number % baseHundred

	switch {
	case hundreds == 0:
		return spellUnderHundred(rest)
	case rest == 0:
		return ones[hundreds] + " hundred"
	default:
		return ones[hundreds] + " hundred " + spellUnderHundred(rest)
	}
}

func spellUnderHundred(number int) string {
	switch {
	case number < baseTen:
		return ones[number]
	case number < baseTwenty:
		return teens[number-baseTen]
	case number%baseTen == 0:
		return tens[number/baseTen]
	default:
		return tens[number/baseTen] + " " + ones[number%baseTen]
	}
}
