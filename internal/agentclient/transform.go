package agentclient

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mtconnect/mtc-ingest/internal/entity"
	"github.com/mtconnect/mtc-ingest/internal/pipeline"
)

// Feedback carries the stream watermarks shared between the XML transform
// and the adapter: the upstream instance id and the next sequence to
// request. A changed instance id invalidates the watermark.
type Feedback struct {
	mu         sync.Mutex
	instanceID uint64
	next       uint64
}

func (f *Feedback) Clear() {
	f.mu.Lock()
	f.instanceID = 0
	f.next = 0
	f.mu.Unlock()
}

func (f *Feedback) Next() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next
}

// update records the header watermarks, reporting whether the instance id
// changed since the last response.
func (f *Feedback) update(instanceID, next uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	changed := f.instanceID != 0 && instanceID != 0 && f.instanceID != instanceID
	if instanceID != 0 {
		f.instanceID = instanceID
	}
	if next != 0 {
		f.next = next
	}
	return changed
}

// XMLTransform parses upstream response documents at the head of the
// adapter pipeline and forwards the entities they carry.
type XMLTransform struct {
	pipeline.Base
	context  *pipeline.Context
	feedback *Feedback
	device   string
	log      zerolog.Logger
}

func NewXMLTransform(ctx *pipeline.Context, feedback *Feedback, device string, log zerolog.Logger) *XMLTransform {
	t := &XMLTransform{
		context:  ctx,
		feedback: feedback,
		device:   device,
		log:      log.With().Str("component", "xml-transform").Logger(),
	}
	t.Base = pipeline.NewBase("MTConnectXmlTransform", pipeline.EntityNameGuard("Data", pipeline.Run))
	return t
}

func (t *XMLTransform) Apply(v any) (any, error) {
	data, ok := v.(*entity.Entity)
	if !ok {
		return nil, &entity.EntityError{Entity: "Data", Reason: "xml transform expects a data entity"}
	}
	body, _ := entity.MaybeGet[string](data, entity.ValueProperty)

	doc, err := ParseResponse(body, t.context.Contract, t.device)
	if err != nil {
		return nil, adapterErr(RetryRequest, err)
	}

	if len(doc.Errors) > 0 {
		for _, e := range doc.Errors {
			t.log.Warn().Str("error", e).Msg("upstream agent error")
		}
		return nil, adapterErr(RestartStream, fmt.Errorf("upstream error document: %s", doc.Errors[0]))
	}

	if t.feedback.update(doc.InstanceID, doc.NextSequence) {
		return nil, adapterErr(InstanceIDChanged, nil)
	}

	for _, obs := range doc.Observations {
		if _, err := t.Forward(obs); err != nil {
			t.log.Error().Err(err).Msg("forward failed")
		}
	}
	for _, a := range doc.Assets {
		if _, err := t.Forward(a); err != nil {
			t.log.Error().Err(err).Msg("asset forward failed")
		}
	}
	if len(doc.Devices) > 0 {
		devices := entity.New("Devices")
		devices.SetValue(doc.Devices)
		if _, err := t.Forward(devices); err != nil {
			t.log.Error().Err(err).Msg("device forward failed")
		}
	}
	return v, nil
}
