package config

import (
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	home, err := filepath.Abs(t.TempDir())
	require.NoError(t, err)
	t.Setenv("HOME", home)
	t.Setenv("PVRE_TEST_DIR", "/data")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"tilde prefix", "~/pvre.db", filepath.Join(home, "pvre.db")},
		{"bare tilde", "~", home},
		{"env var", "$PVRE_TEST_DIR/pvre.db", "/data/pvre.db"},
		{"plain path", "/var/lib/pvre.db", "/var/lib/pvre.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.in))
		})
	}
}

func TestFromViperDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	s := FromViper()
	assert.Contains(t, s.DatabasePath, "pvre.db")
	assert.NotEmpty(t, s.ArchiveBaseURL)
	assert.Empty(t, s.OracleAPIKey)
}
