package transport

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInboundRoundTrip(t *testing.T) {
	in := Inbound{
		Event:     EventOverlayInput,
		Text:      "summarize this page",
		RequestID: "req-42",
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var decoded Inbound
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, in, decoded)
}

func TestInboundOmitsEmptyFields(t *testing.T) {
	in := Inbound{Event: EventStopAll}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	str := string(data)
	assert.NotContains(t, str, "text")
	assert.NotContains(t, str, "requestId")
	assert.NotContains(t, str, "width")
	assert.NotContains(t, str, "height")
}

func TestOutboundCommandAndID(t *testing.T) {
	out := Outbound{"command": CmdDrawBox, "id": "box-1", "x": 10}

	assert.Equal(t, CmdDrawBox, out.Command())
	assert.Equal(t, "box-1", out.ID())

	data, err := out.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"draw_box","id":"box-1","x":10}`, string(data))
}

func TestOutboundMissingFieldsReturnEmpty(t *testing.T) {
	out := Outbound{"x": 1}
	assert.Equal(t, "", out.Command())
	assert.Equal(t, "", out.ID())
}

func TestViewportEvent(t *testing.T) {
	in := Inbound{Event: EventViewport, Width: 1920, Height: 1080}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var decoded Inbound
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, float64(1920), decoded.Width)
	assert.Equal(t, float64(1080), decoded.Height)
}

func TestClickEvent(t *testing.T) {
	in := Inbound{Event: EventClick, ID: "entity-7"}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var decoded Inbound
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, EventClick, decoded.Event)
	assert.Equal(t, "entity-7", decoded.ID)
}
