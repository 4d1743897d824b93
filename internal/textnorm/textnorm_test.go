package textnorm_test

import (
	"testing"

	"github.com/book-expert/voice-clone-service/internal/textnorm"
	"github.com/stretchr/testify/assert"
)

type normalizeTestCase struct {
	name     string
	input    string
	expected string
}

func runNormalizeTests(t *testing.T, tests []normalizeTestCase) {
	t.Helper()

	normalizer := textnorm.New()

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.expected, normalizer.Normalize(testCase.input))
		})
	}
}

func TestNormalize_Basics(t *testing.T) {
	t.Parallel()

	runNormalizeTests(t, []normalizeTestCase{
		{name: "empty", input: "", expected: ""},
		{name: "blank", input: " \t\n", expected: ""},
		{name: "adds sentence end", input: "Hello world", expected: "Hello world."},
		{name: "keeps question mark", input: "Ready?", expected: "Ready?"},
		{name: "collapses whitespace", input: "  Hello \r\n\t world  ", expected: "Hello world."},
	})
}

func TestNormalize_Abbreviations(t *testing.T) {
	t.Parallel()

	runNormalizeTests(t, []normalizeTestCase{
		{name: "mister", input: "Mr. Smith", expected: "Mister Smith."},
		{name: "doctor", input: "Dr. Johnson", expected: "Doctor Johnson."},
		{name: "several", input: "Mr. and Mrs. Smith", expected: "Mister and Misses Smith."},
		{name: "trailing", input: "Future Tech Inc.", expected: "Future Tech Incorporated."},
	})
}

func TestNormalize_Numbers(t *testing.T) {
	t.Parallel()

	runNormalizeTests(t, []normalizeTestCase{
		{name: "digit", input: "There are 3 cars.", expected: "There are three cars."},
		{name: "teen", input: "I have 17 friends.", expected: "I have seventeen friends."},
		{name: "thousands", input: "Chapter 5000", expected: "Chapter five thousand."},
		{name: "too large", input: "Population 1000000", expected: "Population 1000000."},
	})
}

func TestNormalize_Punctuation(t *testing.T) {
	t.Parallel()

	runNormalizeTests(t, []normalizeTestCase{
		{name: "smart quotes", input: "“Hi,” she said", expected: `"Hi," she said.`},
		{name: "dashes", input: "wait—what", expected: "wait-what."},
		{name: "ellipsis", input: "Well…", expected: "Well..."},
		{name: "repeated marks", input: "Stop!!!", expected: "Stop!"},
	})
}

func TestNormalize_PreservesURLsAndEmails(t *testing.T) {
	t.Parallel()

	runNormalizeTests(t, []normalizeTestCase{
		{
			name:     "url digits untouched",
			input:    "See https://example.com/page/42 now",
			expected: "See https://example.com/page/42 now.",
		},
		{
			name:     "email digits untouched",
			input:    "Write to user99@example.org or call 2",
			expected: "Write to user99@example.org or call two.",
		},
	})
}

func TestSpellInteger(t *testing.T) {
	t.Parallel()

	tests := map[int]string{
		0:      "zero",
		7:      "seven",
		20:     "twenty",
		42:     "forty two",
		100:    "one hundred",
		101:    "one hundred one",
		999:    "nine hundred ninety nine",
		1000:   "one thousand",
		12345:  "twelve thousand three hundred forty five",
		999999: "nine hundred ninety nine thousand nine hundred ninety nine",
		-1:     "-1",
	}

	for input, expected := range tests {
		assert.Equal(t, expected, textnorm.SpellInteger(input), "input %d", input)
	}
}
