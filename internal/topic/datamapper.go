package topic

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/mtconnect/mtc-ingest/internal/entity"
	"github.com/mtconnect/mtc-ingest/internal/observation"
	"github.com/mtconnect/mtc-ingest/internal/pipeline"
	"github.com/mtconnect/mtc-ingest/internal/shdr"
)

// DataMapper turns a plain message into a string observation at the agent
// clock, or re-parses the body as SHDR when no data item was resolved.
type DataMapper struct {
	pipeline.Base
	context *pipeline.Context
	now     Now
	log     zerolog.Logger
}

func NewDataMapper(ctx *pipeline.Context, now Now, log zerolog.Logger) *DataMapper {
	if now == nil {
		now = time.Now
	}
	m := &DataMapper{
		context: ctx,
		now:     now,
		log:     log.With().Str("component", "data-mapper").Logger(),
	}
	m.Base = pipeline.NewBase("DataMapper", pipeline.TypeGuard[*DataMessage](pipeline.Run))
	return m
}

func (m *DataMapper) Apply(v any) (any, error) {
	data, ok := v.(*DataMessage)
	if !ok {
		return nil, &entity.EntityError{Entity: "DataMessage", Reason: "data mapper expects a data message"}
	}

	if data.DataItem != nil {
		props := map[string]entity.Value{entity.ValueProperty: data.Body}
		obs, errs := observation.Make(data.DataItem, props, m.now().Truncate(time.Microsecond))
		if obs == nil {
			for _, e := range errs {
				m.log.Warn().Err(e).Msg("error while parsing message data")
			}
			return nil, nil
		}
		if data.Source != "" {
			data.DataItem.SetDataSource(data.Source)
		}
		return m.Forward(obs)
	}

	if data.Body != "" {
		// No data item resolved; try processing the body as SHDR.
		return m.Forward(shdr.NewData(data.Body, data.Source))
	}

	m.log.Error().Str("topic", data.Topic).Msg("cannot find data item for topic")
	return nil, nil
}
