package gameserver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePlayerList(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     []string
	}{
		{
			name:     "two players",
			response: "There are 2 of a max of 20 players online: alice, bob",
			want:     []string{"alice", "bob"},
		},
		{
			name:     "single player",
			response: "There are 1 of a max of 20 players online: alice",
			want:     []string{"alice"},
		},
		{
			name:     "empty server",
			response: "There are 0 of a max of 20 players online:",
			want:     nil,
		},
		{
			name:     "no colon at all",
			response: "unexpected output",
			want:     nil,
		},
		{
			name:     "whitespace around names",
			response: "players online:  alice ,  bob ",
			want:     []string{"alice", "bob"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, parsePlayerList(tt.response))
		})
	}
}
