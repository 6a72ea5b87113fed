// Package tokens implements the newline-delimited token array format used for
// every resource payload written to a pod.
package tokens

import (
	"fmt"
	"strings"
)

// Encode renders every element with its default string form and terminates
// each one with "\n", e.g. ["one", 2, true] becomes "one\n2\ntrue\n".
func Encode[T any](tokens []T) string {
	var sb strings.Builder
	for _, tok := range tokens {
		sb.WriteString(fmt.Sprint(tok))
		sb.WriteByte('\n')
	}
	return sb.String()
}

var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Decode splits a payload into its string tokens, one per line.
// Lines end with "\n", "\r\n" or a lone "\r". Trailing empty tokens are
// removed, so "one\n2\ntrue\n" decodes to ["one", "2", "true"].
// The empty payload decodes to a single empty token.
func Decode(payload string) []string {
	if payload == "" {
		return []string{""}
	}

	parts := strings.Split(lineBreaks.Replace(payload), "\n")

	end := len(parts)
	for end > 0 && parts[end-1] == "" {
		end--
	}
	return parts[:end]
}

// Concat returns old followed by added as a single token slice.
func Concat[T any](old []string, added []T) []any {
	all := make([]any, 0, len(old)+len(added))
	for _, tok := range old {
		all = append(all, tok)
	}
	for _, tok := range added {
		all = append(all, tok)
	}
	return all
}
