// Copyright 2026 The Parca Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package profile

import (
	"encoding/json"
	"fmt"
	"math"
)

type MarkerPhase int

const (
	MarkerPhaseInstant MarkerPhase = iota
	MarkerPhaseInterval
	MarkerPhaseIntervalStart
	MarkerPhaseIntervalEnd
)

// MarkersTable stores markers column-wise. Absent start or end times are NaN,
// absent payloads are nil.
type MarkersTable struct {
	Name      []int
	StartTime []float64
	EndTime   []float64
	Phase     []MarkerPhase
	Category  []int
	Data      []MarkerPayload
}

func (t *MarkersTable) Len() int {
	return len(t.Name)
}

// Duration returns the marker's duration, or NaN for instant markers.
func (t *MarkersTable) Duration(i int) float64 {
	if math.IsNaN(t.StartTime[i]) || math.IsNaN(t.EndTime[i]) {
		return math.NaN()
	}
	return t.EndTime[i] - t.StartTime[i]
}

// MarkerType discriminates payload variants.
type MarkerType string

const (
	MarkerTypeUserTiming MarkerType = "UserTiming"
	MarkerTypeText       MarkerType = "Text"
	MarkerTypeTracing    MarkerType = "tracing"
	MarkerTypeGCMajor    MarkerType = "GCMajor"
	MarkerTypeNetwork    MarkerType = "Network"
	MarkerTypeFileIO     MarkerType = "FileIO"
	MarkerTypeIPC        MarkerType = "IPC"
	MarkerTypeDOMEvent   MarkerType = "DOMEvent"
)

// MarkerPayload is the closed set of payload variants below.
type MarkerPayload interface {
	MarkerType() MarkerType
}

// CauseStack is implemented by payloads that carry the stack which caused
// the marker. Transforms remap those stacks along with samples.
type CauseStack interface {
	StackCause() (int, bool)
	WithCauseStack(stack int) MarkerPayload
}

type Cause struct {
	Time  *float64 `json:"time,omitempty"`
	Stack int      `json:"stack"`
}

type UserTimingPayload struct {
	Name  string `json:"name"`
	Entry string `json:"entryType"`
}

type TextPayload struct {
	Name  string `json:"name"`
	Cause *Cause `json:"cause,omitempty"`
}

type TracingPayload struct {
	Category string `json:"category"`
	Interval string `json:"interval,omitempty"`
	Cause    *Cause `json:"cause,omitempty"`
}

type GCMajorPayload struct {
	Reason      string  `json:"reason,omitempty"`
	TotalTimeMs float64 `json:"totalTime,omitempty"`
}

type NetworkPayload struct {
	ID        int64   `json:"id"`
	URI       string  `json:"URI"`
	Status    string  `json:"status"`
	Pri       int     `json:"pri"`
	Count     int64   `json:"count,omitempty"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
}

type FileIOPayload struct {
	Operation string `json:"operation"`
	Source    string `json:"source"`
	Filename  string `json:"filename,omitempty"`
	Cause     *Cause `json:"cause,omitempty"`
}

type IPCPayload struct {
	StartTime    float64 `json:"startTime"`
	EndTime      float64 `json:"endTime"`
	OtherPid     string  `json:"otherPid"`
	MessageType  string  `json:"messageType"`
	MessageSeqno int64   `json:"messageSeqno"`
	Direction    string  `json:"direction"`
	Phase        string  `json:"phase"`
	Sync         bool    `json:"sync"`
}

type DOMEventPayload struct {
	EventType     string `json:"eventType"`
	InnerWindowID int64  `json:"innerWindowID,omitempty"`
}

func (UserTimingPayload) MarkerType() MarkerType { return MarkerTypeUserTiming }
func (TextPayload) MarkerType() MarkerType       { return MarkerTypeText }
func (TracingPayload) MarkerType() MarkerType    { return MarkerTypeTracing }
func (GCMajorPayload) MarkerType() MarkerType    { return MarkerTypeGCMajor }
func (NetworkPayload) MarkerType() MarkerType    { return MarkerTypeNetwork }
func (FileIOPayload) MarkerType() MarkerType     { return MarkerTypeFileIO }
func (IPCPayload) MarkerType() MarkerType        { return MarkerTypeIPC }
func (DOMEventPayload) MarkerType() MarkerType   { return MarkerTypeDOMEvent }

func causeStack(c *Cause) (int, bool) {
	if c == nil || c.Stack == NoStack {
		return NoStack, false
	}
	return c.Stack, true
}

func withStack(c *Cause, stack int) *Cause {
	nc := *c
	nc.Stack = stack
	return &nc
}

func (p TextPayload) StackCause() (int, bool)    { return causeStack(p.Cause) }
func (p TracingPayload) StackCause() (int, bool) { return causeStack(p.Cause) }
func (p FileIOPayload) StackCause() (int, bool)  { return causeStack(p.Cause) }

func (p TextPayload) WithCauseStack(stack int) MarkerPayload {
	p.Cause = withStack(p.Cause, stack)
	return p
}

func (p TracingPayload) WithCauseStack(stack int) MarkerPayload {
	p.Cause = withStack(p.Cause, stack)
	return p
}

func (p FileIOPayload) WithCauseStack(stack int) MarkerPayload {
	p.Cause = withStack(p.Cause, stack)
	return p
}

// DecodeMarkerPayload decodes a payload by its "type" discriminant. A JSON
// null yields a nil payload.
func DecodeMarkerPayload(data []byte) (MarkerPayload, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var head struct {
		Type MarkerType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode marker payload type: %w", err)
	}

	var (
		payload MarkerPayload
		err     error
	)
	switch head.Type {
	case MarkerTypeUserTiming:
		var p UserTimingPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case MarkerTypeText:
		var p TextPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case MarkerTypeTracing:
		var p TracingPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case MarkerTypeGCMajor:
		var p GCMajorPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case MarkerTypeNetwork:
		var p NetworkPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case MarkerTypeFileIO:
		var p FileIOPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case MarkerTypeIPC:
		var p IPCPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case MarkerTypeDOMEvent:
		var p DOMEventPayload
		err = json.Unmarshal(data, &p)
		payload = p
	default:
		return nil, fmt.Errorf("%w: unknown marker payload type %q", ErrInvalidProfile, head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s marker payload: %w", head.Type, err)
	}
	return payload, nil
}

// EncodeMarkerPayload encodes a payload together with its "type" discriminant.
func EncodeMarkerPayload(p MarkerPayload) ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}

	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	typ, err := json.Marshal(p.MarkerType())
	if err != nil {
		return nil, err
	}

	// Splice the discriminant into the encoded object.
	res := make([]byte, 0, len(body)+len(typ)+8)
	res = append(res, `{"type":`...)
	res = append(res, typ...)
	if len(body) > 2 {
		res = append(res, ',')
		res = append(res, body[1:]...)
	} else {
		res = append(res, '}')
	}
	return res, nil
}
