// Package shdr decodes the line-oriented, pipe-delimited wire format used
// by MTConnect adapters into typed observations and asset commands.
package shdr

import (
	"strings"

	"github.com/mtconnect/mtc-ingest/internal/entity"
	"github.com/mtconnect/mtc-ingest/internal/metrics"
	"github.com/mtconnect/mtc-ingest/internal/pipeline"
)

// Tokens carries the ordered fields of one SHDR line.
type Tokens struct {
	Source string
	Tokens []string
}

func (t *Tokens) Name() string { return "Tokens" }

// NewData wraps a raw line as the entity the tokenizer accepts.
func NewData(line, source string) *entity.Entity {
	e := entity.New("Data")
	e.SetValue(line)
	if source != "" {
		e.Set("source", source)
	}
	return e
}

// Tokenizer splits a line on unescaped pipes into a token list.
type Tokenizer struct {
	pipeline.Base
}

func NewTokenizer() *Tokenizer {
	t := &Tokenizer{}
	t.Base = pipeline.NewBase("ShdrTokenizer", pipeline.EntityNameGuard("Data", pipeline.Run))
	return t
}

func (t *Tokenizer) Apply(v any) (any, error) {
	data, ok := v.(*entity.Entity)
	if !ok {
		return nil, &entity.EntityError{Entity: "Data", Reason: "tokenizer expects a data entity"}
	}
	body, _ := entity.MaybeGet[string](data, entity.ValueProperty)
	source, _ := entity.MaybeGet[string](data, "source")
	metrics.ShdrLinesTotal.Inc()
	return t.Forward(&Tokens{Source: source, Tokens: Tokenize(body)})
}

// Tokenize splits a line of SHDR into fields on the pipe delimiter. A
// double-quoted field may contain pipes and escaped characters (the
// backslash is removed); the closing quote must be followed by whitespace,
// a pipe or end of line, otherwise the quotes are literal. Fields are
// trimmed of surrounding ASCII whitespace, and a trailing pipe preserves a
// final empty token.
func Tokenize(line string) []string {
	var tokens []string
	i, n := 0, len(line)
	for i < n {
		for i < n && isSpace(line[i]) {
			i++
		}
		if i >= n {
			break
		}

		if line[i] == '"' {
			if tok, rest, ok := quotedToken(line, i); ok {
				tokens = append(tokens, tok)
				i = consumeDelimiter(line, rest, &tokens)
				continue
			}
		}

		j := i
		for j < n && line[j] != '|' {
			j++
		}
		tokens = append(tokens, trim(line[i:j]))
		i = consumeDelimiter(line, j, &tokens)
	}
	return tokens
}

// quotedToken parses a quoted field starting at the opening quote. Returns
// the unescaped content, the index after the closing quote's trailing
// whitespace, and whether a terminating quote was found.
func quotedToken(line string, start int) (string, int, bool) {
	n := len(line)
	var b strings.Builder
	j := start + 1
	for j < n {
		c := line[j]
		if c == '\\' && j+1 < n {
			b.WriteByte(line[j+1])
			j += 2
			continue
		}
		if c == '"' {
			k := j + 1
			for k < n && isSpace(line[k]) {
				k++
			}
			if k >= n || line[k] == '|' {
				return trim(b.String()), k, true
			}
		}
		b.WriteByte(c)
		j++
	}
	return "", 0, false
}

// consumeDelimiter steps past a field's terminating pipe, appending the
// final empty token when the pipe ends the line.
func consumeDelimiter(line string, i int, tokens *[]string) int {
	if i < len(line) && line[i] == '|' {
		i++
		if i >= len(line) {
			*tokens = append(*tokens, "")
		}
	}
	return i
}

func trim(s string) string {
	return strings.Trim(s, " \r\n\t")
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}
