package chat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChannelValidate(t *testing.T) {
	tests := []struct {
		name    string
		ch      Channel
		wantErr bool
	}{
		{"group without peer", Channel{ID: "c1", Kind: KindGroup}, false},
		{"dm with peer", Channel{ID: "c2", Kind: KindDirect, PeerUserID: "u1"}, false},
		{"dm without peer", Channel{ID: "c3", Kind: KindDirect}, true},
		{"group with peer", Channel{ID: "c4", Kind: KindGroup, PeerUserID: "u1"}, true},
		{"missing id", Channel{Kind: KindGroup}, true},
		{"unknown kind", Channel{ID: "c5", Kind: Kind(7)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ch.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestKindString(t *testing.T) {
	require.Equal(t, "group", KindGroup.String())
	require.Equal(t, "direct", KindDirect.String())
	require.Equal(t, "Kind(9)", Kind(9).String())
}
