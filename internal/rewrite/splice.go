package rewrite

import (
	"errors"
	"fmt"
)

var ErrInvalidRange = errors.New("invalid splice range")

// Anchor is the deletion range after widening, with what the scans found.
type Anchor struct {
	Start int
	End   int

	// Word is the identifier preceding the instance; Matched reports
	// whether it was the old macro name and Start was moved onto it.
	Word    string
	Matched bool

	// Terminator is set when End was moved past a trailing ';'.
	Terminator bool
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

func isIdent(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// PrecedingWord scans backward from start: whitespace is skipped, then a
// maximal run of identifier characters is collected. It returns the word
// and the offset of its first byte. The word is empty when the byte before
// the whitespace is not an identifier character.
func PrecedingWord(text string, start int) (string, int) {
	i := start - 1
	for i >= 0 && isSpace(text[i]) {
		i--
	}
	end := i + 1
	for i >= 0 && isIdent(text[i]) {
		i--
	}
	return text[i+1 : end], i + 1
}

// Widen validates the analyzer range [start, end) and extends it backward
// over the old macro type name and forward over one statement terminator.
// The backward scan never moves Start past anything but whitespace and the
// word itself; the forward scan consumes at most the whitespace before the
// terminator and the terminator.
func Widen(text string, start, end int, oldMacro string) (Anchor, error) {
	if start < 0 || start > end || end > len(text) {
		return Anchor{}, fmt.Errorf("%w: [%d, %d) in %d bytes", ErrInvalidRange, start, end, len(text))
	}

	a := Anchor{Start: start, End: end}

	word, wordStart := PrecedingWord(text, start)
	a.Word = word
	if word != "" && word == oldMacro {
		a.Start = wordStart
		a.Matched = true
	}

	i := end
	for i < len(text) && isSpace(text[i]) {
		i++
	}
	if i < len(text) && text[i] == ';' {
		a.End = i + 1
		a.Terminator = true
	}

	return a, nil
}

// Splice replaces text[a.Start:a.End] with replacement.
func Splice(text string, a Anchor, replacement string) (string, error) {
	if a.Start < 0 || a.Start > a.End || a.End > len(text) {
		return "", fmt.Errorf("%w: [%d, %d) in %d bytes", ErrInvalidRange, a.Start, a.End, len(text))
	}
	return text[:a.Start] + replacement + text[a.End:], nil
}
