package frappe

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePacket(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  packet
	}{
		{"open", `0{"sid":"a"}`, packet{eio: eioOpen, data: []byte(`{"sid":"a"}`)}},
		{"ping", "2", packet{eio: eioPing, data: []byte{}}},
		{"connect default namespace", "40", packet{eio: eioMessage, sio: sioConnect, namespace: "/"}},
		{"connect namespace", `40/site,{"sid":"b"}`, packet{eio: eioMessage, sio: sioConnect, namespace: "/site", data: []byte(`{"sid":"b"}`)}},
		{"namespace without payload", "41/site", packet{eio: eioMessage, sio: sioDisconnect, namespace: "/site"}},
		{"event", `42/site,["e",1]`, packet{eio: eioMessage, sio: sioEvent, namespace: "/site", data: []byte(`["e",1]`)}},
		{"event with ack id", `42/site,13["e"]`, packet{eio: eioMessage, sio: sioEvent, namespace: "/site", data: []byte(`["e"]`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePacket(tt.frame)
			require.NoError(t, err)
			require.Equal(t, tt.want.eio, got.eio)
			require.Equal(t, tt.want.sio, got.sio)
			require.Equal(t, tt.want.namespace, got.namespace)
			require.Equal(t, string(tt.want.data), string(got.data))
		})
	}
}

func TestParsePacketErrors(t *testing.T) {
	_, err := parsePacket("")
	require.ErrorIs(t, err, errEmptyPacket)

	_, err = parsePacket("4")
	require.Error(t, err)
}

func TestPacketEvent(t *testing.T) {
	p, err := parsePacket(`42/site,["chatly:unread_channel_count_updated",{"channel_id":"c1"}]`)
	require.NoError(t, err)

	name, data, err := p.event()
	require.NoError(t, err)
	require.Equal(t, eventUnreadUpdated, name)
	require.JSONEq(t, `{"channel_id":"c1"}`, string(data))

	p, _ = parsePacket(`42["bare"]`)
	name, data, err = p.event()
	require.NoError(t, err)
	require.Equal(t, "bare", name)
	require.Nil(t, data)

	p, _ = parsePacket(`42[]`)
	_, _, err = p.event()
	require.Error(t, err)
}

func TestConnectFrame(t *testing.T) {
	require.Equal(t, "40", connectFrame("/"))
	require.Equal(t, "40/chat.example.com,", connectFrame("/chat.example.com"))
}

func TestConnectErrorMessage(t *testing.T) {
	require.Equal(t, "Unauthorized", connectErrorMessage([]byte(`{"message":"Unauthorized"}`)))
	require.Equal(t, `"raw"`, connectErrorMessage([]byte(`"raw"`)))
}

func TestFlagDecoding(t *testing.T) {
	for in, want := range map[string]bool{`1`: true, `0`: false, `true`: true, `false`: false, `null`: false, `"1"`: true} {
		var f flag
		require.NoError(t, f.UnmarshalJSON([]byte(in)), in)
		require.Equal(t, want, bool(f), in)
	}
}
