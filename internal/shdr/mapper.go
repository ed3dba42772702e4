package shdr

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mtconnect/mtc-ingest/internal/asset"
	"github.com/mtconnect/mtc-ingest/internal/device"
	"github.com/mtconnect/mtc-ingest/internal/entity"
	"github.com/mtconnect/mtc-ingest/internal/observation"
	"github.com/mtconnect/mtc-ingest/internal/pipeline"
)

// Observations is the bundle of entities mapped from one line.
type Observations struct {
	Timestamped
	Entities []any
}

func (o *Observations) Name() string { return "Observations" }

// Requirement tables per data-item category and representation.
var (
	conditionReqs = []entity.Requirement{
		entity.Req("level", true),
		entity.Req("nativeCode", false),
		entity.Req("nativeSeverity", false),
		entity.Req("qualifier", false),
		entity.Req(entity.ValueProperty, false),
	}
	alarmReqs = []entity.Requirement{
		entity.Req("code", true),
		entity.Req("nativeCode", false),
		entity.Req("severity", false),
		entity.Req("state", true),
		entity.Req(entity.ValueProperty, false),
	}
	timeseriesReqs = []entity.Requirement{
		entity.TypedReq("sampleCount", entity.KindInteger, true),
		entity.TypedReq("sampleRate", entity.KindDouble, true),
		entity.TypedReq(entity.ValueProperty, entity.KindVector, true),
	}
	messageReqs = []entity.Requirement{
		entity.Req("nativeCode", false),
		entity.Req(entity.ValueProperty, false),
	}
	threeSpaceReqs = []entity.Requirement{
		entity.TypedReq(entity.ValueProperty, entity.KindVector, false),
	}
	sampleReqs = []entity.Requirement{
		entity.TypedReq(entity.ValueProperty, entity.KindDouble, false),
	}
	assetEventReqs = []entity.Requirement{
		entity.Req("assetType", false),
		entity.Req(entity.ValueProperty, false),
	}
	eventReqs = []entity.Requirement{
		entity.Req(entity.ValueProperty, false),
	}
	dataSetReqs = []entity.Requirement{
		entity.TypedReq(entity.ValueProperty, entity.KindDataSet, false),
	}
	tableReqs = []entity.Requirement{
		entity.TypedReq(entity.ValueProperty, entity.KindTable, false),
	}
)

// TokenMapper pairs tokens with data items and produces observations and
// asset commands.
type TokenMapper struct {
	pipeline.Base
	contract      pipeline.Contract
	defaultDevice string
	version       int
	logOnce       map[string]bool
	log           zerolog.Logger
}

func NewTokenMapper(ctx *pipeline.Context, defaultDevice string, version int, log zerolog.Logger) *TokenMapper {
	m := &TokenMapper{
		contract:      ctx.Contract,
		defaultDevice: defaultDevice,
		version:       version,
		logOnce:       make(map[string]bool),
		log:           log.With().Str("component", "shdr").Logger(),
	}
	m.Base = pipeline.NewBase("ShdrTokenMapper", pipeline.TypeGuard[*Timestamped](pipeline.Run))
	return m
}

func (m *TokenMapper) Apply(v any) (any, error) {
	ts, ok := v.(*Timestamped)
	if !ok {
		return nil, &entity.EntityError{Entity: "Timestamped", Reason: "cannot map non-timestamped token stream"}
	}

	res := &Observations{Timestamped: Timestamped{
		Tokens:    Tokens{Source: ts.Source},
		Timestamp: ts.Timestamp,
		Duration:  ts.Duration,
	}}

	tokens := ts.Tokens.Tokens
	pos := 0
	for pos < len(tokens) {
		start := pos
		var out any
		var err error
		if strings.HasPrefix(tokens[pos], "@") {
			out, pos, err = m.mapTokensToAsset(ts, tokens, pos)
		} else {
			out, pos, err = m.mapTokensToDataItem(ts, tokens, pos)
		}
		if err != nil {
			m.log.Error().Err(err).Msg("could not create observation")
			continue
		}
		if out != nil {
			fwd, ferr := m.Forward(out)
			if ferr != nil {
				m.log.Error().Err(ferr).Msg("forward failed")
			} else if fwd != nil {
				res.Entities = append(res.Entities, fwd)
			}
		}
		// Legacy line handling: one mapping per line once more than two
		// tokens were consumed.
		if m.version < 2 && pos-start > 2 {
			break
		}
	}

	return m.Forward(res)
}

// splitKey separates an optional device: prefix from a data-item key.
func splitKey(key string) (string, string) {
	if c := strings.IndexByte(key, ':'); c >= 0 {
		return key[c+1:], key[:c]
	}
	return key, ""
}

func (m *TokenMapper) mapTokensToDataItem(ts *Timestamped, tokens []string, pos int) (any, int, error) {
	key, deviceName := splitKey(tokens[pos])
	pos++
	if deviceName == "" {
		deviceName = m.defaultDevice
	}
	di := m.contract.FindDataItem(deviceName, key)
	if di == nil {
		if m.logOnce[key] {
			m.log.Trace().Str("data_item", key).Msg("could not find data item")
		} else {
			m.log.Info().Str("data_item", key).Msg("could not find data item")
			m.logOnce[key] = true
		}
		// Resync: legacy lines carry a fixed follow-up token per record.
		if m.version < 2 && pos < len(tokens) {
			pos++
		}
		return nil, pos, nil
	}

	reqs := m.requirementsFor(di)
	if reqs == nil {
		return nil, pos, &entity.EntityError{Entity: key, Reason: "unresolved data item requirements"}
	}

	obs, npos, errs := m.zipProperties(di, ts.Timestamp, reqs, tokens, pos)
	pos = npos
	for _, e := range errs {
		m.log.Warn().Err(e).Str("data_item", di.ID).Msg("error while parsing tokens")
	}
	if obs == nil {
		return nil, pos, nil
	}
	if di.ConstantValue != nil {
		return nil, pos, nil
	}
	if ts.Duration != nil {
		obs.Entity().Set("duration", *ts.Duration)
	}
	if ts.Source != "" {
		di.SetDataSource(ts.Source)
	}
	return obs, pos, nil
}

func (m *TokenMapper) requirementsFor(di *device.DataItem) []entity.Requirement {
	switch {
	case di.IsSample():
		switch {
		case di.IsTimeSeries():
			return timeseriesReqs
		case di.IsThreeSpace():
			return threeSpaceReqs
		default:
			return sampleReqs
		}
	case di.IsEvent():
		switch {
		case di.IsMessage():
			return messageReqs
		case di.IsAlarm():
			return alarmReqs
		case di.IsTable():
			return tableReqs
		case di.IsDataSet():
			return dataSetReqs
		case di.IsAssetChanged(), di.IsAssetRemoved():
			return assetEventReqs
		default:
			return eventReqs
		}
	case di.IsCondition():
		return conditionReqs
	}
	return nil
}

// zipProperties pairs tokens with the requirement list in order, leaving
// UNAVAILABLE value and level slots unset so the observation is marked
// unavailable. Conversion failures skip the property with a warning.
func (m *TokenMapper) zipProperties(di *device.DataItem, ts time.Time,
	reqs []entity.Requirement, tokens []string, pos int) (observation.Observation, int, []error) {

	props := make(map[string]entity.Value, len(reqs))
	for r := 0; r < len(reqs) && pos < len(tokens); r, pos = r+1, pos+1 {
		req := &reqs[r]
		tok := tokens[pos]

		// Condition lines may omit the severity; a qualifier literal in
		// the severity slot shifts to the qualifier requirement.
		if req.Name == "nativeSeverity" && isQualifier(tok) {
			pos--
			continue
		}

		if req.Name == entity.ValueProperty || req.Name == "level" {
			if strings.EqualFold(tok, "UNAVAILABLE") {
				continue
			}
		} else if tok == "" {
			continue
		}

		value := m.extractResetTrigger(di, tok, props)

		kind := req.Kind
		if kind == entity.KindDataSet && di.IsTable() {
			kind = entity.KindTable
		}
		if kind != entity.KindNone {
			converted, err := entity.Convert(value, kind)
			if err != nil {
				m.log.Warn().Str("data_item", di.ID).Str("token", tok).Err(err).
					Msg("cannot convert value for data item")
				continue
			}
			props[req.Name] = converted
		} else {
			props[req.Name] = value
		}
	}

	obs, errs := observation.Make(di, props, ts)
	return obs, pos, errs
}

// extractResetTrigger splits a :TRIGGER suffix (prefix for data sets) into
// the resetTriggered property and returns the remaining value.
func (m *TokenMapper) extractResetTrigger(di *device.DataItem, token string, props map[string]entity.Value) string {
	if !di.HasResetTrigger() && !di.IsDataSet() {
		return token
	}

	var trig, value string
	if !di.IsDataSet() {
		pos := strings.IndexByte(token, ':')
		if pos < 0 {
			return token
		}
		trig = token[pos+1:]
		value = token[:pos]
	} else {
		pos := firstNonWsColon(token)
		if pos < 0 {
			return token
		}
		if ef := strings.IndexAny(token[pos:], " \t"); ef >= 0 {
			trig = token[pos+1 : pos+ef]
			value = token[pos+ef+1:]
		} else {
			trig = token[pos+1:]
		}
	}

	if trig != "" {
		props["resetTriggered"] = strings.ToUpper(trig)
	}
	return value
}

// isQualifier matches the condition qualifier vocabulary.
func isQualifier(tok string) bool {
	return tok == "HIGH" || tok == "LOW"
}

// firstNonWsColon returns the index of a colon only when it is the first
// non-whitespace character of the token.
func firstNonWsColon(token string) int {
	for i := 0; i < len(token); i++ {
		if token[i] == ':' {
			return i
		}
		if !isSpace(token[i]) {
			return -1
		}
	}
	return -1
}

func (m *TokenMapper) mapTokensToAsset(ts *Timestamped, tokens []string, pos int) (any, int, error) {
	command := tokens[pos]
	pos++

	switch command {
	case "@ASSET@":
		if pos+2 >= len(tokens) {
			return nil, len(tokens), &entity.EntityError{Entity: "AssetCommand", Reason: "truncated @ASSET@ command"}
		}
		assetID := tokens[pos]
		assetType := tokens[pos+1]
		body := tokens[pos+2]
		pos += 3

		a, errs := asset.Parse(body)
		if a == nil || len(errs) > 0 {
			m.log.Warn().Str("asset_id", assetID).Msg("could not parse asset")
			for _, e := range errs {
				m.log.Warn().Err(e).Msg("asset parse")
			}
			if a == nil {
				return nil, pos, nil
			}
		}
		if a.Type() != assetType {
			m.log.Debug().Str("asset_id", assetID).Str("declared", assetType).
				Str("parsed", a.Type()).Msg("asset type mismatch")
		}
		a.SetAssetID(assetID)
		a.SetTimestamp(ts.Timestamp)
		if m.defaultDevice != "" {
			if dev := m.contract.FindDevice(m.defaultDevice); dev != nil {
				a.SetDeviceUUID(dev.UUID)
			}
		}
		return a, pos, nil

	case "@REMOVE_ALL_ASSETS@":
		ac := newAssetCommand("RemoveAll", ts.Timestamp)
		if pos < len(tokens) {
			if tokens[pos] != "" {
				ac.Set("type", tokens[pos])
			}
			pos++
		}
		if m.defaultDevice != "" {
			ac.Set("device", m.defaultDevice)
		}
		return ac, pos, nil

	case "@REMOVE_ASSET@":
		if pos >= len(tokens) {
			return nil, pos, &entity.EntityError{Entity: "AssetCommand", Reason: "missing asset id"}
		}
		ac := newAssetCommand("RemoveAsset", ts.Timestamp)
		ac.Set("assetId", tokens[pos])
		pos++
		if m.defaultDevice != "" {
			ac.Set("device", m.defaultDevice)
		}
		return ac, pos, nil
	}

	return nil, pos, &entity.EntityError{Entity: command, Reason: "unknown asset command"}
}

func newAssetCommand(verb string, ts time.Time) *entity.Entity {
	ac := entity.New("AssetCommand")
	ac.SetValue(verb)
	ac.Set("timestamp", ts)
	return ac
}
