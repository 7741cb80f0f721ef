package signal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeOf(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    string
		wantErr bool
	}{
		{name: "join", data: `{"type":"joinRoom","roomId":"R1"}`, want: TypeJoinRoom},
		{name: "offer", data: `{"type":"callUser","userToCall":"R1"}`, want: TypeCallUser},
		{name: "missing type", data: `{"roomId":"R1"}`, wantErr: true},
		{name: "empty type", data: `{"type":""}`, wantErr: true},
		{name: "not json", data: `{`, wantErr: true},
		{name: "empty", data: ``, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TypeOf([]byte(tt.data))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpaquePayloadSurvivesRouting(t *testing.T) {
	// The relay re-wraps CallUser as IncomingCall; the signal payload must
	// pass through byte-identical, whatever its shape.
	payload := `{"type":"offer","sdp":"v=0\r\n","nested":{"k":[1,2,3]}}`

	var in CallUser
	raw, err := Marshal(CallUser{
		Type:       TypeCallUser,
		UserToCall: "R1",
		SignalData: json.RawMessage(payload),
		From:       "alice",
	})
	require.NoError(t, err)
	require.NoError(t, Unmarshal(raw, &in))

	out, err := Marshal(IncomingCall{Type: TypeCallUser, Signal: in.SignalData, From: in.From})
	require.NoError(t, err)

	var delivered IncomingCall
	require.NoError(t, Unmarshal(out, &delivered))
	assert.JSONEq(t, payload, string(delivered.Signal))
	assert.Equal(t, "alice", delivered.From)
}
