package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		expected *Config
		name     string
		args     []string
		wantErr  bool
	}{
		{name: "Test1 OK", args: []string{"-u", "http://127.0.0.1:9999", "-i", "10", "-p", "abcd"},
			expected: &Config{BackendURL: "http://127.0.0.1:9999", ProjectRef: "abcd", OnlineCheckInterval: 10 * time.Second}},
		{name: "Test2 long flags", args: []string{"-log-level=debug", "-postgres", "postgres://localhost/app"},
			expected: &Config{LogLevel: "debug", PostgresDSN: "postgres://localhost/app"}},
		{name: "Test3 foreign flags ignored", args: []string{"-c", "cfg.json", "-env-file", "x.env", "-l", ":8081"},
			expected: &Config{ListenAddr: ":8081"}},
		{name: "Test4 incorrect check interval", args: []string{"-u", "http://x", "-i", "abc"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{}
			err := parseArgs(config, tt.args)

			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(tt.expected, config))
		})
	}
}
