package dispatch

import (
	"encoding/json"
	"fmt"
)

// Region is the part of the client page a fragment replaces.
type Region string

const (
	RegionList    Region = "list"
	RegionDetails Region = "details"
	RegionForm    Region = "form"
	RegionSummary Region = "summary"
	RegionCount   Region = "count"
	RegionNotice  Region = "notice"
)

type Fragment struct {
	Region Region
	Type   EventType
	Data   any
}

// View is the ordered output of one handler run.
type View struct {
	Fragments []Fragment
}

func (v *View) Add(region Region, event EventType, data any) {
	v.Fragments = append(v.Fragments, Fragment{Region: region, Type: event, Data: data})
}

func (v View) Empty() bool {
	return len(v.Fragments) == 0
}

type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeError NoticeLevel = "error"
)

type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
	Status  string      `json:"status,omitempty"`
}

// Renderer turns a view into frames, one outbound message each.
type Renderer interface {
	Render(view View) ([][]byte, error)
}

// JSONRenderer emits one JSON frame per fragment.
type JSONRenderer struct{}

type jsonFrame struct {
	Region Region    `json:"region"`
	Type   EventType `json:"message_type"`
	Data   any       `json:"data"`
}

func (JSONRenderer) Render(view View) ([][]byte, error) {
	frames := make([][]byte, 0, len(view.Fragments))
	for _, f := range view.Fragments {
		frame, err := json.Marshal(jsonFrame{Region: f.Region, Type: f.Type, Data: f.Data})
		if err != nil {
			return nil, fmt.Errorf("render %s/%s: %w", f.Type, f.Region, err)
		}
		frames = append(frames, frame)
	}
	return frames, nil
}
