package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKVLine(t *testing.T) {
	tests := []struct {
		line string
		want kvCommand
	}{
		{"GET a", kvCommand{op: kvGet, key: "a"}},
		{"GET_PROVIDERS a", kvCommand{op: kvGetProviders, key: "a"}},
		{"PUT a 1", kvCommand{op: kvPut, key: "a", value: "1"}},
		{"PUT greeting hello there  ", kvCommand{op: kvPut, key: "greeting", value: "hello there"}},
		{"PUT_PROVIDER a", kvCommand{op: kvPutProvider, key: "a"}},
		{"  GET   spaced  ", kvCommand{op: kvGet, key: "spaced"}},
		{"GET a trailing", kvCommand{op: kvGet, key: "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseKVLine(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseKVLineErrors(t *testing.T) {
	tests := []struct {
		line string
		want error
	}{
		{"GET", errExpectedKey},
		{"PUT_PROVIDER  ", errExpectedKey},
		{"PUT a", errExpectedValue},
		{"DELETE a", errUnknownVerb},
		{"get a", errUnknownVerb},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			_, err := parseKVLine(tt.line)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
