package proxy

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// call is a parsed vectorize.search(...)/vectorize.rag(...) invocation
// lifted from a query's literal SQL text. The proxy only recognizes the
// literal-argument form (job and query text as single-quoted string
// literals, an optional trailing integer limit); a driver binding these
// as extended-protocol parameters instead of embedding them in the
// statement text is not something the proxy text-sniffs for.
type call struct {
	rag   bool
	job   string
	query string
	limit int
}

// callPattern matches a statement that is "vectorize.search('job','query text')"
// or "vectorize.rag('job', 'query text', 5)", optionally preceded by
// SELECT, case-insensitively, tolerating whitespace around commas/parens and an
// optional trailing semicolon. Single quotes inside a literal must be
// doubled per SQL string literal escaping, matched by '' inside the
// character class.
var callPattern = regexp.MustCompile(`(?is)^(?:select\s+)?vectorize\.(search|rag)\s*\(\s*'((?:[^']|'')*)'\s*,\s*'((?:[^']|'')*)'\s*(?:,\s*(\d+)\s*)?\)\s*;?\s*$`)

// parseCall extracts a vectorize.search/rag call from sql if sql is
// (after trimming whitespace) entirely that one call, optionally preceded
// by SELECT, and nil otherwise.
// Only a statement consisting of exactly one such call is intercepted;
// anything else — including a matching call nested inside a larger
// statement — is forwarded to Postgres untouched, since the proxy
// cannot synthesize a result set for an arbitrary enclosing query.
func parseCall(sql string) *call {
	trimmed := strings.TrimSpace(sql)
	m := callPattern.FindStringSubmatch(trimmed)
	if m == nil {
		return nil
	}

	limit := 5
	if m[4] != "" {
		if n, err := strconv.Atoi(m[4]); err == nil && n >= 0 {
			limit = n
		}
	}

	return &call{
		rag:   strings.EqualFold(m[1], "rag"),
		job:   unescapeLiteral(m[2]),
		query: unescapeLiteral(m[3]),
		limit: limit,
	}
}

func unescapeLiteral(s string) string {
	return strings.ReplaceAll(s, "''", "'")
}

func (c *call) String() string {
	fn := "search"
	if c.rag {
		fn = "rag"
	}
	return fmt.Sprintf("vectorize.%s(%q, %q, %d)", fn, c.job, c.query, c.limit)
}
