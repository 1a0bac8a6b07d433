package grammar

import "strings"

// quotedSpan is a double-quoted token in the source text.
// start and end delimit the token including its quotes.
type quotedSpan struct {
	start, end int
	content    string
}

// scanDoubleQuoted finds every double-quoted token outside string literals,
// backtick identifiers and comments. A doubled quote inside the token is an
// escaped quote.
func scanDoubleQuoted(text string) []quotedSpan {
	var spans []quotedSpan
	for i := 0; i < len(text); {
		switch c := text[i]; {
		case c == '\'' || c == '`':
			i = skipQuoted(text, i, c)
		case c == '-' && strings.HasPrefix(text[i:], "--"):
			if nl := strings.IndexByte(text[i:], '\n'); nl >= 0 {
				i += nl + 1
			} else {
				i = len(text)
			}
		case c == '/' && strings.HasPrefix(text[i:], "/*"):
			if end := strings.Index(text[i+2:], "*/"); end >= 0 {
				i += end + 4
			} else {
				i = len(text)
			}
		case c == '"':
			end := skipQuoted(text, i, '"')
			var content string
			if end <= len(text) && end-1 > i {
				content = strings.ReplaceAll(text[i+1:end-1], `""`, `"`)
			}
			spans = append(spans, quotedSpan{start: i, end: end, content: content})
			i = end
		default:
			i++
		}
	}
	return spans
}

// skipQuoted returns the index just past the quoted token starting at i.
// Unterminated tokens run to the end of the text; the parser reports them.
func skipQuoted(text string, i int, quote byte) int {
	for j := i + 1; j < len(text); j++ {
		if text[j] != quote {
			if text[j] == '\\' && quote == '\'' {
				j++
			}
			continue
		}
		if j+1 < len(text) && text[j+1] == quote {
			j++
			continue
		}
		return j + 1
	}
	return len(text)
}

// rewriteQuoted replaces every span using render.
func rewriteQuoted(text string, spans []quotedSpan, render func(string) string) string {
	var b strings.Builder
	last := 0
	for _, s := range spans {
		b.WriteString(text[last:s.start])
		b.WriteString(render(s.content))
		last = s.end
	}
	b.WriteString(text[last:])
	return b.String()
}

func asIdentifier(content string) string {
	return "`" + strings.ReplaceAll(content, "`", "``") + "`"
}

func asLiteral(content string) string {
	return "'" + strings.ReplaceAll(content, "'", "''") + "'"
}
