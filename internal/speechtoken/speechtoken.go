// Package speechtoken implements the textual form of speech codes used inside the
// generation model's vocabulary, and the sentinel markers that delimit prompt
// regions.
//
// A speech symbol is the literal prefix "<|s_", a base-10 non-negative integer
// with no sign, and the literal suffix "|>".
package speechtoken

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/book-expert/voice-clone-service/internal/core"
)

// Symbol delimiters.
const (
	SymbolPrefix = "<|s_"
	SymbolSuffix = "|>"
)

// Sentinel tokens recognized by the generation model.
const (
	TextUnderstandingStart = "<|TEXT_UNDERSTANDING_START|>"
	TextUnderstandingEnd   = "<|TEXT_UNDERSTANDING_END|>"
	SpeechGenerationStart  = "<|SPEECH_GENERATION_START|>"
	SpeechGenerationEnd    = "<|SPEECH_GENERATION_END|>"
)

// Parse errors.
var (
	ErrMissingPrefix = errors.New("missing symbol prefix")
	ErrMissingSuffix = errors.New("missing symbol suffix")
	ErrInvalidBody   = errors.New("symbol body is not a non-negative integer")
	ErrNegativeCode  = errors.New("speech code cannot be negative")
)

// Malformed describes a symbol that FromSymbols skipped.
type Malformed struct {
	Err    error
	Symbol string
	Index  int
}

func (m Malformed) String() string {
	return fmt.Sprintf("#%d %q: %v", m.Index, m.Symbol, m.Err)
}

// Wrap returns the symbol for a single speech code.
func Wrap(code int) (string, error) {
	if code < 0 {
		return "", fmt.Errorf("%w: %d", ErrNegativeCode, code)
	}

	return SymbolPrefix + strconv.Itoa(code) + SymbolSuffix, nil
}

// Unwrap parses a single symbol back into its speech code.
func Unwrap(symbol string) (int, error) {
	if !strings.HasPrefix(symbol, SymbolPrefix) {
		return 0, ErrMissingPrefix
	}

	body, found := strings.CutSuffix(symbol[len(SymbolPrefix):], SymbolSuffix)
	if !found {
		return 0, ErrMissingSuffix
	}

	if body == "" {
		return 0, ErrInvalidBody
	}

	for _, r := range body {
		if r < '0' || r > '9' {
			return 0, ErrInvalidBody
		}
	}

	code, err := strconv.Atoi(body)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}

	return code, nil
}

// ToSymbols wraps every code. Codes come from the codec and are non-negative;
// a negative code is reported rather than rendered.
func ToSymbols(codes core.SpeechCodes) ([]string, error) {
	symbols := make([]string, 0, len(codes))

	for i, code := range codes {
		symbol, err := Wrap(code)
		if err != nil {
			return nil, fmt.Errorf("code %d: %w", i, err)
		}

		symbols = append(symbols, symbol)
	}

	return symbols, nil
}

// FromSymbols parses symbols in order. Entries that do not match the grammar
// are skipped and reported; valid entries keep their order and values.
func FromSymbols(symbols []string) (core.SpeechCodes, []Malformed) {
	codes := make(core.SpeechCodes, 0, len(symbols))

	var malformed []Malformed

	for i, symbol := range symbols {
		code, err := Unwrap(symbol)
		if err != nil {
			malformed = append(malformed, Malformed{Index: i, Symbol: symbol, Err: err})

			continue
		}

		codes = append(codes, code)
	}

	return codes, malformed
}

// Join concatenates symbols without separators, as they appear in a prompt.
func Join(symbols []string) string {
	return strings.Join(symbols, "")
}
