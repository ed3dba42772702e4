package agentclient

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mtconnect/mtc-ingest/internal/asset"
	"github.com/mtconnect/mtc-ingest/internal/device"
	"github.com/mtconnect/mtc-ingest/internal/entity"
	"github.com/mtconnect/mtc-ingest/internal/observation"
	"github.com/mtconnect/mtc-ingest/internal/pipeline"
)

// ResponseDocument is the parsed form of one upstream response payload:
// the header watermarks plus the entities it carried.
type ResponseDocument struct {
	InstanceID   uint64
	NextSequence uint64
	Observations []observation.Observation
	Assets       []*asset.Asset
	Devices      entity.EntityList
	Errors       []string
}

// conditionLevels maps condition element names in streams documents.
var conditionLevels = map[string]string{
	"Normal":      "normal",
	"Warning":     "warning",
	"Fault":       "fault",
	"Unavailable": "unavailable",
}

// ParseResponse parses an MTConnectStreams, MTConnectAssets,
// MTConnectDevices or MTConnectError document. Observations resolve their
// data items through the contract against the mapped device; unresolved
// items are skipped.
func ParseResponse(body string, contract pipeline.Contract, deviceName string) (*ResponseDocument, error) {
	dec := xml.NewDecoder(strings.NewReader(body))
	doc := &ResponseDocument{}

	var root string
	var dev *device.Device
	inCondition := false

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			if end, ok := tok.(xml.EndElement); ok && end.Name.Local == "Condition" {
				inCondition = false
			}
			continue
		}

		name := start.Name.Local
		switch name {
		case "MTConnectStreams", "MTConnectAssets", "MTConnectDevices", "MTConnectError":
			root = name

		case "Header":
			for _, a := range start.Attr {
				switch a.Name.Local {
				case "instanceId":
					doc.InstanceID, _ = strconv.ParseUint(a.Value, 10, 64)
				case "nextSequence":
					doc.NextSequence, _ = strconv.ParseUint(a.Value, 10, 64)
				}
			}

		case "DeviceStream":
			dev = nil
			for _, a := range start.Attr {
				if a.Name.Local == "name" || a.Name.Local == "uuid" {
					if d := contract.FindDevice(a.Value); d != nil {
						dev = d
					}
				}
			}
			if dev == nil && deviceName != "" {
				dev = contract.FindDevice(deviceName)
			}

		case "Streams", "ComponentStream", "Samples", "Events":
			// Containers; their children carry the observations.

		case "Condition":
			inCondition = true

		case "Error":
			var code string
			for _, a := range start.Attr {
				if a.Name.Local == "errorCode" {
					code = a.Value
				}
			}
			var text struct {
				Value string `xml:",chardata"`
			}
			_ = dec.DecodeElement(&text, &start)
			doc.Errors = append(doc.Errors, fmt.Sprintf("%s: %s", code, strings.TrimSpace(text.Value)))

		case "Device":
			if root == "MTConnectDevices" {
				ent, _ := decodeSubtree(dec, start)
				if ent != nil {
					doc.Devices = append(doc.Devices, ent)
				}
			}

		default:
			if root == "MTConnectAssets" && name != "Assets" {
				ent, _ := decodeSubtree(dec, start)
				if ent != nil {
					doc.Assets = append(doc.Assets, asset.FromEntity(ent))
				}
				continue
			}
			if root != "MTConnectStreams" {
				continue
			}
			if obs := parseStreamObservation(dec, start, dev, inCondition); obs != nil {
				doc.Observations = append(doc.Observations, obs)
			}
		}
	}

	if root == "" {
		return nil, fmt.Errorf("unrecognized response document")
	}
	return doc, nil
}

// parseStreamObservation turns one observation element into a typed
// observation via the data item dictionary.
func parseStreamObservation(dec *xml.Decoder, start xml.StartElement, dev *device.Device, inCondition bool) observation.Observation {
	attrs := make(map[string]string, len(start.Attr))
	for _, a := range start.Attr {
		attrs[a.Name.Local] = a.Value
	}

	var text struct {
		Value string `xml:",chardata"`
	}
	if err := dec.DecodeElement(&text, &start); err != nil {
		return nil
	}
	value := strings.TrimSpace(text.Value)

	if dev == nil {
		return nil
	}
	di := dev.DataItem(attrs["dataItemId"])
	if di == nil {
		return nil
	}

	ts := time.Now().UTC()
	if t, err := entity.ParseTimestamp(attrs["timestamp"]); err == nil {
		ts = t
	}

	props := make(map[string]entity.Value)
	if value != "" {
		props[entity.ValueProperty] = value
	}
	if inCondition {
		if level, ok := conditionLevels[start.Name.Local]; ok {
			props["level"] = level
		}
	}
	for _, key := range []string{"nativeCode", "nativeSeverity", "qualifier",
		"sampleRate", "sampleCount", "resetTriggered", "duration", "assetType", "count"} {
		if v, ok := attrs[key]; ok && v != "" {
			props[key] = v
		}
	}

	obs, _ := observation.Make(di, props, ts)
	return obs
}

// decodeSubtree parses one element subtree through the generic XML entity
// parser.
func decodeSubtree(dec *xml.Decoder, start xml.StartElement) (*entity.Entity, error) {
	ent, errs := entity.ParseXMLElement(dec, nil, start)
	if ent == nil && len(errs) > 0 {
		return nil, errs[0]
	}
	return ent, nil
}
