// Package text formats help text of the tonpay commands.
package text

import (
	"strings"
)

// Indentation is the indentation of example lines.
const Indentation = `  `

// LongDesc trims a long description and strips the source indentation of every line, so that
// descriptions can be written as indented raw strings.
func LongDesc(s string) string {
	return strings.Join(lines(s, ""), "\n")
}

// Examples trims examples and indents every line by Indentation. Blank lines stay empty.
func Examples(s string) string {
	return strings.Join(lines(s, Indentation), "\n")
}

func lines(s, prefix string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	out := make([]string, 0, strings.Count(s, "\n")+1)
	for line := range strings.SplitSeq(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			out = append(out, "")
			continue
		}
		out = append(out, prefix+line)
	}

	return out
}
