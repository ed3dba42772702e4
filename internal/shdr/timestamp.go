package shdr

import (
	"strconv"
	"strings"
	"time"

	"github.com/mtconnect/mtc-ingest/internal/entity"
	"github.com/mtconnect/mtc-ingest/internal/pipeline"
)

// Timestamped carries a token list whose leading timestamp has been
// extracted, plus an optional duration from the @ suffix.
type Timestamped struct {
	Tokens
	Timestamp time.Time
	Duration  *float64
}

func (t *Timestamped) Name() string { return "Timestamped" }

// Now supplies the agent clock; injectable for tests.
type Now func() time.Time

// splitDuration strips the @seconds suffix from a timestamp token. An
// unparsable suffix is left in place.
func splitDuration(token string) (string, *float64) {
	pos := strings.LastIndexByte(token, '@')
	if pos < 0 {
		return token, nil
	}
	d, err := strconv.ParseFloat(token[pos+1:], 64)
	if err != nil {
		return token, nil
	}
	return token[:pos], &d
}

// ExtractTimestamp consumes the first token as the observation timestamp.
// In relative mode the first sample anchors a base; later ISO instants are
// shifted by the initial offset and floats are milliseconds since the
// anchor.
type ExtractTimestamp struct {
	pipeline.Base
	relative bool
	now      Now

	base   *time.Time
	offset time.Duration
}

func NewExtractTimestamp(relative bool, now Now) *ExtractTimestamp {
	if now == nil {
		now = time.Now
	}
	e := &ExtractTimestamp{relative: relative, now: now}
	e.Base = pipeline.NewBase("ExtractTimestamp", pipeline.TypeGuard[*Tokens](pipeline.Run))
	return e
}

func (e *ExtractTimestamp) Apply(v any) (any, error) {
	tokens, ok := v.(*Tokens)
	if !ok || len(tokens.Tokens) == 0 {
		return nil, &entity.EntityError{Entity: "Tokens", Reason: "no tokens to extract timestamp from"}
	}
	res := &Timestamped{Tokens: Tokens{Source: tokens.Source, Tokens: tokens.Tokens[1:]}}
	res.Timestamp, res.Duration = e.parse(tokens.Tokens[0])
	return e.Forward(res)
}

func (e *ExtractTimestamp) parse(token string) (time.Time, *float64) {
	token, duration := splitDuration(token)
	if token == "" {
		return e.now().Truncate(time.Microsecond), duration
	}

	hasT := strings.ContainsRune(token, 'T')
	var parsed time.Time
	if hasT {
		var err error
		parsed, err = entity.ParseTimestamp(token)
		if err != nil {
			parsed = e.now().Truncate(time.Microsecond)
		}
		if !e.relative {
			return parsed, duration
		}
	}

	now := e.now().Truncate(time.Microsecond)
	var off float64
	if !hasT {
		var err error
		off, err = strconv.ParseFloat(token, 64)
		if err != nil {
			return now, duration
		}
	}

	if e.base == nil {
		base := now
		e.base = &base
		if hasT {
			e.offset = now.Sub(parsed)
		} else {
			e.offset = time.Duration(off * float64(time.Millisecond))
		}
		return now, duration
	}

	if hasT {
		return parsed.Add(e.offset), duration
	}
	return e.base.Add(time.Duration(off*float64(time.Millisecond)) - e.offset), duration
}

// IgnoreTimestamp discards the adapter's timestamp and stamps the agent's
// clock instead.
type IgnoreTimestamp struct {
	pipeline.Base
	now Now
}

func NewIgnoreTimestamp(now Now) *IgnoreTimestamp {
	if now == nil {
		now = time.Now
	}
	i := &IgnoreTimestamp{now: now}
	i.Base = pipeline.NewBase("IgnoreTimestamp", pipeline.TypeGuard[*Tokens](pipeline.Run))
	return i
}

func (i *IgnoreTimestamp) Apply(v any) (any, error) {
	tokens, ok := v.(*Tokens)
	if !ok || len(tokens.Tokens) == 0 {
		return nil, &entity.EntityError{Entity: "Tokens", Reason: "no tokens to extract timestamp from"}
	}
	res := &Timestamped{Tokens: Tokens{Source: tokens.Source, Tokens: tokens.Tokens[1:]}}
	_, duration := splitDuration(tokens.Tokens[0])
	res.Timestamp = i.now().Truncate(time.Microsecond)
	res.Duration = duration
	return i.Forward(res)
}
