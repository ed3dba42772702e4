package agent

import (
	"github.com/rs/zerolog"

	"github.com/mtconnect/mtc-ingest/internal/deliver"
	"github.com/mtconnect/mtc-ingest/internal/filters"
	"github.com/mtconnect/mtc-ingest/internal/pipeline"
	"github.com/mtconnect/mtc-ingest/internal/shdr"
	"github.com/mtconnect/mtc-ingest/internal/topic"
	"github.com/mtconnect/mtc-ingest/internal/validate"
)

// PipelineOptions select the transforms of an ingest pipeline.
type PipelineOptions struct {
	DefaultDevice       string
	ShdrVersion         int
	IgnoreTimestamps    bool
	RelativeTime        bool
	UpcaseDataItemValue bool
	FilterDuplicates    bool
}

// BuildIngestPipeline assembles the source-to-delivery graph shared by the
// MQTT and SHDR entry points:
//
//	Message -> TopicMapper -> JsonMapper / DataMapper
//	Data    -> ShdrTokenizer -> ExtractTimestamp -> ShdrTokenMapper
//	Observation -> [UpcaseValue] -> [DuplicateFilter] -> DeltaFilter ->
//	               PeriodFilter -> ValidateTimestamp -> [Validator] ->
//	               DeliverObservation
//
// plus the asset, asset-command and command delivery branches.
func BuildIngestPipeline(ctx *pipeline.Context, strand *pipeline.Strand,
	opts PipelineOptions, log zerolog.Logger) *pipeline.Pipeline {

	pipe := pipeline.New(ctx, strand)
	buildIngest(pipe, opts, log)
	pipe.ApplySplices()
	return pipe
}

// RebuildIngestPipeline reassembles the graph in place after a device
// model change, reapplying recorded splices.
func RebuildIngestPipeline(pipe *pipeline.Pipeline, opts PipelineOptions, log zerolog.Logger) {
	pipe.Clear()
	buildIngest(pipe, opts, log)
	pipe.ApplySplices()
	pipe.Start()
}

func buildIngest(pipe *pipeline.Pipeline, opts PipelineOptions, log zerolog.Logger) {
	ctx := pipe.Context()
	strand := pipe.Strand()

	// Topic side.
	topicMapper := topic.NewTopicMapper(ctx, opts.DefaultDevice)
	pipe.Bind(topicMapper)
	jsonMapper := topic.NewJsonMapper(ctx, nil, log)
	topicMapper.Bind(jsonMapper)
	dataMapper := topic.NewDataMapper(ctx, nil, log)
	topicMapper.Bind(dataMapper)

	// SHDR side. The data mapper re-forwards unresolved payloads as SHDR,
	// so the tokenizer hangs off both the pipeline head and the mapper.
	tokenizer := shdr.NewTokenizer()
	pipe.Bind(tokenizer)
	dataMapper.Bind(tokenizer)

	var extract pipeline.Transform
	if opts.IgnoreTimestamps {
		extract = shdr.NewIgnoreTimestamp(nil)
	} else {
		extract = shdr.NewExtractTimestamp(opts.RelativeTime, nil)
	}
	tokenizer.Bind(extract)

	tokenMapper := shdr.NewTokenMapper(ctx, opts.DefaultDevice, opts.ShdrVersion, log)
	extract.Bind(tokenMapper)

	// Observation chain, shared by every producer.
	chain := make([]pipeline.Transform, 0, 7)
	if opts.UpcaseDataItemValue {
		chain = append(chain, filters.NewUpcaseValue())
	}
	if opts.FilterDuplicates {
		chain = append(chain, filters.NewDuplicateFilter(ctx))
	}
	chain = append(chain,
		filters.NewDeltaFilter(ctx),
		filters.NewPeriodFilter(ctx, strand, log),
		filters.NewCorrectTimestamp(ctx, log),
	)
	if ctx.Contract.IsValidating() {
		chain = append(chain, validate.NewValidator(ctx, log))
	}
	chain = append(chain, deliver.NewDeliverObservation(ctx, ""))
	for i := 0; i < len(chain)-1; i++ {
		chain[i].Bind(chain[i+1])
	}
	observations := chain[0]

	deliverAsset := deliver.NewDeliverAsset(ctx, "")

	tokenMapper.Bind(observations)
	tokenMapper.Bind(deliverAsset)
	tokenMapper.Bind(deliver.NewDeliverAssetCommand(ctx))
	tokenMapper.Bind(deliver.NewDeliverCommand(ctx, opts.DefaultDevice))
	tokenMapper.Bind(pipeline.NewNullTransform(
		pipeline.TypeGuard[*shdr.Observations](pipeline.Run)))

	jsonMapper.Bind(observations)
	jsonMapper.Bind(deliverAsset)

	dataMapper.Bind(observations)
}
