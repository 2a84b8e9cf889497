package codeact

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnsafeSQL marks statements rejected by VerifyReadOnly.
var ErrUnsafeSQL = errors.New("unsafe SQL")

// UnsafeSQLError names the keyword that caused a rejection.
type UnsafeSQLError struct {
	Keyword string
}

func (e *UnsafeSQLError) Error() string {
	return fmt.Sprintf("Unsafe SQL detected: statement contains forbidden keyword %s. Only read-only queries are allowed.", e.Keyword)
}

func (e *UnsafeSQLError) Unwrap() error { return ErrUnsafeSQL }

// ForbiddenKeywords are rejected anywhere in a statement, including inside
// string literals and comments. The check is lexical.
var ForbiddenKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "TRUNCATE", "GRANT",
	"REVOKE", "EXEC", "EXECUTE", "CALL", "REPLACE", "CREATE", "MERGE",
}

var forbiddenPatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(ForbiddenKeywords))
	for i, kw := range ForbiddenKeywords {
		out[i] = regexp.MustCompile(`(?i)\b` + kw + `\b`)
	}
	return out
}()

var fencedBlock = regexp.MustCompile("(?i)```(?:sql)?\\s*([\\s\\S]+?)```")

// ExtractSQL returns the trimmed contents of the first fenced code block in
// text, or the trimmed text itself when there is none.
func ExtractSQL(text string) string {
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

// VerifyReadOnly rejects sql when it contains any forbidden keyword as a whole
// word, case-insensitively.
func VerifyReadOnly(sql string) error {
	for i, re := range forbiddenPatterns {
		if re.MatchString(sql) {
			return &UnsafeSQLError{Keyword: ForbiddenKeywords[i]}
		}
	}
	return nil
}
