package dispatch

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/ordergroup/internal/bus"
	"github.com/immxrtalbeast/ordergroup/internal/domain"
	"github.com/immxrtalbeast/ordergroup/lib/logger/handlers/slogdiscard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_PanicBecomesInternalError(t *testing.T) {
	log := slogdiscard.NewDiscardLogger()
	b := bus.NewMemory()
	defer b.Close()
	r := NewRouter(Services{}, nil, NewAnnouncer(b, log), nil, log)
	r.routes[EventRefreshOrder] = route{handle: func(context.Context, Request) (Result, error) {
		panic("boom")
	}}
	sess := Session{ConnID: "c1", UserID: uuid.New(), Channel: domain.OrderSessionChannel("123")}

	out := r.Dispatch(context.Background(), sess, Inbound{Type: EventRefreshOrder})

	require.Len(t, out, 1)
	var frame struct {
		Region string `json:"region"`
		Data   Notice `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out[0], &frame))
	assert.Equal(t, "notice", frame.Region)
	assert.Equal(t, "internal error", frame.Data.Message)

	// The router keeps serving after a panic.
	r.routes[EventRefreshOrder] = route{handle: func(context.Context, Request) (Result, error) {
		var v View
		v.Add(RegionForm, EventRefreshOrder, map[string]int{"ok": 1})
		return Result{View: v}, nil
	}}
	assert.Len(t, r.Dispatch(context.Background(), sess, Inbound{Type: EventRefreshOrder}), 1)
}

func TestGroupFlag(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    *bool
	}{
		{"absent", `{"order_id":"x"}`, nil},
		{"empty", ``, nil},
		{"true", `{"group":true}`, ptr(true)},
		{"false", `{"group":false}`, ptr(false)},
		{"not an object", `[1,2]`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, groupFlag(json.RawMessage(tt.message)))
		})
	}
}

func TestJSONRenderer_OneFramePerFragment(t *testing.T) {
	var v View
	v.Add(RegionList, EventMembersOrders, []int{1})
	v.Add(RegionNotice, EventMembersOrders, Notice{Level: NoticeInfo, Message: "hi"})

	frames, err := JSONRenderer{}.Render(v)

	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.JSONEq(t, `{"region":"list","message_type":"membersOrders","data":[1]}`, string(frames[0]))
	assert.JSONEq(t, `{"region":"notice","message_type":"membersOrders","data":{"level":"info","message":"hi"}}`, string(frames[1]))
}

func ptr(b bool) *bool { return &b }
