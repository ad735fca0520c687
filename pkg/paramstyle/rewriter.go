// Package paramstyle rewrites queries written in any of five
// placeholder dialects into the wire protocol's positional `$N` form,
// and builds the argument materializer that reorders caller-supplied
// values to match.
package paramstyle

import (
	"strings"

	"github.com/cumulusdb/cumulus-go/pkg/errors"
)

// Style identifies a placeholder dialect.
type Style int

const (
	Qmark Style = iota
	Numeric
	Named
	Format
	Pyformat
)

func (s Style) String() string {
	switch s {
	case Qmark:
		return "qmark"
	case Numeric:
		return "numeric"
	case Named:
		return "named"
	case Format:
		return "format"
	case Pyformat:
		return "pyformat"
	default:
		return "unknown"
	}
}

// scanState is one of the six lexer states driving the rewrite.
type scanState int

const (
	stateOutside scanState = iota
	stateSingleQuote
	stateQuotedIdent
	stateEscapedString
	stateParamName
	stateLineComment
)

// Materializer reorders a caller's argument map or slice into the
// positional order the rewritten query expects.
type Materializer func(args map[string]interface{}, positional []interface{}) ([]interface{}, error)

// Result is a completed rewrite: the $N-normalized query text and the
// materializer that produces positional arguments from the caller's
// input.
type Result struct {
	Query        string
	Style        Style
	Materializer Materializer
	// Names is the deduplicated, first-occurrence-ordered list of named
	// placeholders, populated for Named and Pyformat styles.
	Names []string
}

// Rewrite scans sql under style and produces the normalized query and
// its materializer. For Pyformat, encountering a bare `%` mid-query
// (not part of `%(name)s` or `%%`) demotes the style to Format to match
// server expectations, per §4.3.
func Rewrite(style Style, sql string) (Result, error) {
	switch style {
	case Qmark:
		return rewritePositionalToken(sql, '?', false)
	case Numeric:
		return rewriteNumeric(sql)
	case Named:
		return rewriteNamed(sql)
	case Format:
		return rewriteFormat(sql)
	case Pyformat:
		return rewritePyformat(sql)
	default:
		return Result{}, errors.Programmingf("paramstyle: unknown style %v", style).Err()
	}
}

// rewritePositionalToken handles qmark: every bare '?' becomes the next
// $N, honoring quote/comment states.
func rewritePositionalToken(sql string, token byte, _ bool) (Result, error) {
	var out strings.Builder
	state := stateOutside
	n := 0
	i := 0
	for i < len(sql) {
		c := sql[i]
		switch state {
		case stateOutside:
			switch {
			case c == '\'':
				state = stateSingleQuote
				out.WriteByte(c)
			case c == '"':
				state = stateQuotedIdent
				out.WriteByte(c)
			case c == 'E' && i+1 < len(sql) && sql[i+1] == '\'':
				state = stateEscapedString
				out.WriteString("E'")
				i++
			case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
				state = stateLineComment
				out.WriteString("--")
				i++
			case c == token:
				n++
				out.WriteByte('$')
				out.WriteString(itoa(n))
			default:
				out.WriteByte(c)
			}
		case stateSingleQuote:
			out.WriteByte(c)
			if c == '\'' {
				if i+1 < len(sql) && sql[i+1] == '\'' {
					out.WriteByte(sql[i+1])
					i++
				} else {
					state = stateOutside
				}
			}
		case stateQuotedIdent:
			out.WriteByte(c)
			if c == '"' {
				state = stateOutside
			}
		case stateEscapedString:
			out.WriteByte(c)
			if c == '\\' && i+1 < len(sql) {
				out.WriteByte(sql[i+1])
				i++
			} else if c == '\'' {
				state = stateOutside
			}
		case stateLineComment:
			out.WriteByte(c)
			if c == '\n' {
				state = stateOutside
			}
		}
		i++
	}

	return Result{
		Query: out.String(),
		Style: Qmark,
		Materializer: func(_ map[string]interface{}, positional []interface{}) ([]interface{}, error) {
			return positional, nil
		},
	}, nil
}

// rewriteNumeric handles `:N`, preserving `::` casts and `:=` assignment.
func rewriteNumeric(sql string) (Result, error) {
	var out strings.Builder
	state := stateOutside
	i := 0
	for i < len(sql) {
		c := sql[i]
		switch state {
		case stateOutside:
			switch {
			case c == '\'':
				state = stateSingleQuote
				out.WriteByte(c)
			case c == '"':
				state = stateQuotedIdent
				out.WriteByte(c)
			case c == 'E' && i+1 < len(sql) && sql[i+1] == '\'':
				state = stateEscapedString
				out.WriteString("E'")
				i++
			case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
				state = stateLineComment
				out.WriteString("--")
				i++
			case c == ':' && i+1 < len(sql) && sql[i+1] == ':':
				out.WriteString("::")
				i++
			case c == ':' && i+1 < len(sql) && sql[i+1] == '=':
				out.WriteString(":=")
				i++
			case c == ':' && i+1 < len(sql) && isDigit(sql[i+1]):
				j := i + 1
				for j < len(sql) && isDigit(sql[j]) {
					j++
				}
				out.WriteByte('$')
				out.WriteString(sql[i+1 : j])
				i = j - 1
			default:
				out.WriteByte(c)
			}
		case stateSingleQuote:
			out.WriteByte(c)
			if c == '\'' {
				if i+1 < len(sql) && sql[i+1] == '\'' {
					out.WriteByte(sql[i+1])
					i++
				} else {
					state = stateOutside
				}
			}
		case stateQuotedIdent:
			out.WriteByte(c)
			if c == '"' {
				state = stateOutside
			}
		case stateEscapedString:
			out.WriteByte(c)
			if c == '\\' && i+1 < len(sql) {
				out.WriteByte(sql[i+1])
				i++
			} else if c == '\'' {
				state = stateOutside
			}
		case stateLineComment:
			out.WriteByte(c)
			if c == '\n' {
				state = stateOutside
			}
		}
		i++
	}

	return Result{
		Query: out.String(),
		Style: Numeric,
		Materializer: func(_ map[string]interface{}, positional []interface{}) ([]interface{}, error) {
			return positional, nil
		},
	}, nil
}

// rewriteNamed handles `:name`, deduplicated by name across the query.
func rewriteNamed(sql string) (Result, error) {
	var out strings.Builder
	state := stateOutside
	order := make([]string, 0, 4)
	index := make(map[string]int, 4)
	var nameBuf strings.Builder
	i := 0
	for i < len(sql) {
		c := sql[i]
		switch state {
		case stateOutside:
			switch {
			case c == '\'':
				state = stateSingleQuote
				out.WriteByte(c)
			case c == '"':
				state = stateQuotedIdent
				out.WriteByte(c)
			case c == 'E' && i+1 < len(sql) && sql[i+1] == '\'':
				state = stateEscapedString
				out.WriteString("E'")
				i++
			case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
				state = stateLineComment
				out.WriteString("--")
				i++
			case c == ':' && i+1 < len(sql) && sql[i+1] == ':':
				out.WriteString("::")
				i++
			case c == ':' && i+1 < len(sql) && sql[i+1] == '=':
				out.WriteString(":=")
				i++
			case c == ':' && i+1 < len(sql) && isNameStart(sql[i+1]):
				state = stateParamName
				nameBuf.Reset()
			default:
				out.WriteByte(c)
			}
		case stateParamName:
			if isNameChar(c) {
				nameBuf.WriteByte(c)
				i++
				continue
			}
			name := nameBuf.String()
			pos, ok := index[name]
			if !ok {
				pos = len(order)
				index[name] = pos
				order = append(order, name)
			}
			out.WriteByte('$')
			out.WriteString(itoa(pos + 1))
			state = stateOutside
			continue
		case stateSingleQuote:
			out.WriteByte(c)
			if c == '\'' {
				if i+1 < len(sql) && sql[i+1] == '\'' {
					out.WriteByte(sql[i+1])
					i++
				} else {
					state = stateOutside
				}
			}
		case stateQuotedIdent:
			out.WriteByte(c)
			if c == '"' {
				state = stateOutside
			}
		case stateEscapedString:
			out.WriteByte(c)
			if c == '\\' && i+1 < len(sql) {
				out.WriteByte(sql[i+1])
				i++
			} else if c == '\'' {
				state = stateOutside
			}
		case stateLineComment:
			out.WriteByte(c)
			if c == '\n' {
				state = stateOutside
			}
		}
		i++
	}
	if state == stateParamName {
		name := nameBuf.String()
		pos, ok := index[name]
		if !ok {
			pos = len(order)
			index[name] = pos
			order = append(order, name)
		}
		out.WriteByte('$')
		out.WriteString(itoa(pos + 1))
	}

	names := order
	return Result{
		Query: out.String(),
		Style: Named,
		Names: names,
		Materializer: func(args map[string]interface{}, _ []interface{}) ([]interface{}, error) {
			out := make([]interface{}, len(names))
			for i, name := range names {
				v, ok := args[name]
				if !ok {
					return nil, errors.Programmingf("paramstyle: missing named argument %q", name).Err()
				}
				out[i] = v
			}
			return out, nil
		},
	}, nil
}

// rewriteFormat handles `%s`/`%%`; any other `%x` sequence is an error.
func rewriteFormat(sql string) (Result, error) {
	var out strings.Builder
	state := stateOutside
	n := 0
	i := 0
	for i < len(sql) {
		c := sql[i]
		switch state {
		case stateOutside:
			switch {
			case c == '\'':
				state = stateSingleQuote
				out.WriteByte(c)
			case c == '"':
				state = stateQuotedIdent
				out.WriteByte(c)
			case c == 'E' && i+1 < len(sql) && sql[i+1] == '\'':
				state = stateEscapedString
				out.WriteString("E'")
				i++
			case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
				state = stateLineComment
				out.WriteString("--")
				i++
			case c == '%' && i+1 < len(sql) && sql[i+1] == '%':
				out.WriteByte('%')
				i++
			case c == '%' && i+1 < len(sql) && sql[i+1] == 's':
				n++
				out.WriteByte('$')
				out.WriteString(itoa(n))
				i++
			case c == '%':
				return Result{}, errors.Programmingf("paramstyle: Only %%s and %%%% are supported").Err()
			default:
				out.WriteByte(c)
			}
		case stateSingleQuote:
			out.WriteByte(c)
			if c == '\'' {
				if i+1 < len(sql) && sql[i+1] == '\'' {
					out.WriteByte(sql[i+1])
					i++
				} else {
					state = stateOutside
				}
			}
		case stateQuotedIdent:
			out.WriteByte(c)
			if c == '"' {
				state = stateOutside
			}
		case stateEscapedString:
			out.WriteByte(c)
			if c == '\\' && i+1 < len(sql) {
				out.WriteByte(sql[i+1])
				i++
			} else if c == '\'' {
				state = stateOutside
			}
		case stateLineComment:
			out.WriteByte(c)
			if c == '\n' {
				state = stateOutside
			}
		}
		i++
	}

	return Result{
		Query: out.String(),
		Style: Format,
		Materializer: func(_ map[string]interface{}, positional []interface{}) ([]interface{}, error) {
			return positional, nil
		},
	}, nil
}

// rewritePyformat handles `%(name)s`/`%%`; a bare `%` demotes to Format.
func rewritePyformat(sql string) (Result, error) {
	if strings.IndexByte(sql, '%') < 0 {
		return rewriteFormat(sql)
	}

	var out strings.Builder
	state := stateOutside
	order := make([]string, 0, 4)
	index := make(map[string]int, 4)
	i := 0
	for i < len(sql) {
		c := sql[i]
		switch state {
		case stateOutside:
			switch {
			case c == '\'':
				state = stateSingleQuote
				out.WriteByte(c)
			case c == '"':
				state = stateQuotedIdent
				out.WriteByte(c)
			case c == 'E' && i+1 < len(sql) && sql[i+1] == '\'':
				state = stateEscapedString
				out.WriteString("E'")
				i++
			case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
				state = stateLineComment
				out.WriteString("--")
				i++
			case c == '%' && i+1 < len(sql) && sql[i+1] == '%':
				out.WriteByte('%')
				i++
			case c == '%' && i+1 < len(sql) && sql[i+1] == '(':
				end := strings.Index(sql[i+2:], ")s")
				if end < 0 {
					return demotePyformat(sql)
				}
				name := sql[i+2 : i+2+end]
				pos, ok := index[name]
				if !ok {
					pos = len(order)
					index[name] = pos
					order = append(order, name)
				}
				out.WriteByte('$')
				out.WriteString(itoa(pos + 1))
				i = i + 2 + end + 1
			case c == '%':
				return demotePyformat(sql)
			default:
				out.WriteByte(c)
			}
		case stateSingleQuote:
			out.WriteByte(c)
			if c == '\'' {
				if i+1 < len(sql) && sql[i+1] == '\'' {
					out.WriteByte(sql[i+1])
					i++
				} else {
					state = stateOutside
				}
			}
		case stateQuotedIdent:
			out.WriteByte(c)
			if c == '"' {
				state = stateOutside
			}
		case stateEscapedString:
			out.WriteByte(c)
			if c == '\\' && i+1 < len(sql) {
				out.WriteByte(sql[i+1])
				i++
			} else if c == '\'' {
				state = stateOutside
			}
		case stateLineComment:
			out.WriteByte(c)
			if c == '\n' {
				state = stateOutside
			}
		}
		i++
	}

	names := order
	return Result{
		Query: out.String(),
		Style: Pyformat,
		Names: names,
		Materializer: func(args map[string]interface{}, _ []interface{}) ([]interface{}, error) {
			out := make([]interface{}, len(names))
			for i, name := range names {
				v, ok := args[name]
				if !ok {
					return nil, errors.Programmingf("paramstyle: missing named argument %q", name).Err()
				}
				out[i] = v
			}
			return out, nil
		},
	}, nil
}

// demotePyformat re-scans sql as Format style, per §4.3's rule that a
// bare `%` mid-query under pyformat demotes to format.
func demotePyformat(sql string) (Result, error) {
	return rewriteFormat(sql)
}

func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isNameStart(c byte) bool  { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isNameChar(c byte) bool   { return isNameStart(c) || isDigit(c) }

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
