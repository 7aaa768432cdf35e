package toolfns

import (
	"context"
	"crypto/md5"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TextStats reports character, word, and line counts for a text.
func TextStats(_ context.Context, args map[string]any) (any, error) {
	text := stringArg(args, "text", "")

	words := strings.Fields(text)
	lines := strings.Split(text, "\n")

	avg := 0.0
	if len(words) > 0 {
		total := 0
		for _, w := range words {
			total += utf8.RuneCountInString(w)
		}
		avg = math.Round(float64(total)/float64(len(words))*100) / 100
	}

	return map[string]any{
		"characters":          utf8.RuneCountInString(text),
		"words":               len(words),
		"lines":               len(lines),
		"average_word_length": avg,
	}, nil
}

// TextTransform converts text to upper, lower, or title case.
func TextTransform(_ context.Context, args map[string]any) (any, error) {
	text := stringArg(args, "text", "")
	mode := stringArg(args, "mode", "upper")

	switch mode {
	case "upper":
		return strings.ToUpper(text), nil
	case "lower":
		return strings.ToLower(text), nil
	case "title":
		return cases.Title(language.Und).String(text), nil
	default:
		return nil, fmt.Errorf("unknown mode %q, supported modes: upper, lower, title", mode)
	}
}

// TextHash returns the MD5 hash of a text.
func TextHash(_ context.Context, args map[string]any) (any, error) {
	text := stringArg(args, "text", "")
	sum := md5.Sum([]byte(text))
	return fmt.Sprintf("MD5: %x", sum), nil
}
