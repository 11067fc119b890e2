package query

import "strings"

// SkipInert returns the index just past the quoted literal, quoted
// identifier or comment that opens at i. ok is false when none opens there.
// Unterminated text runs to the end of sqlText.
func SkipInert(sqlText string, i int) (end int, ok bool) {
	c := sqlText[i]
	switch {
	case c == '\'' || c == '"':
		return skipQuoted(sqlText, i, c), true
	case c == '-' && i+1 < len(sqlText) && sqlText[i+1] == '-':
		newline := strings.IndexByte(sqlText[i:], '\n')
		if newline < 0 {
			return len(sqlText), true
		}
		return i + newline, true
	case c == '/' && i+1 < len(sqlText) && sqlText[i+1] == '*':
		closing := strings.Index(sqlText[i+2:], "*/")
		if closing < 0 {
			return len(sqlText), true
		}
		return i + 2 + closing + 2, true
	}
	return i, false
}

// CountStatements counts the ';'-separated statements of sqlText that
// contain something besides whitespace and comments. Separators inside
// literals and comments do not count.
func CountStatements(sqlText string) int {
	count := 0
	pending := false
	for i := 0; i < len(sqlText); {
		if end, ok := SkipInert(sqlText, i); ok {
			if c := sqlText[i]; c == '\'' || c == '"' {
				pending = true
			}
			i = end
			continue
		}
		switch c := sqlText[i]; {
		case c == ';':
			if pending {
				count++
			}
			pending = false
		case c != ' ' && c != '\t' && c != '\n' && c != '\r':
			pending = true
		}
		i++
	}
	if pending {
		count++
	}
	return count
}

// skipQuoted returns the index just past the literal that opens at start.
// Doubled quote characters are escapes.
func skipQuoted(sqlText string, start int, quote byte) int {
	for i := start + 1; i < len(sqlText); i++ {
		if sqlText[i] != quote {
			continue
		}
		if i+1 < len(sqlText) && sqlText[i+1] == quote {
			i++
			continue
		}
		return i + 1
	}
	return len(sqlText)
}
