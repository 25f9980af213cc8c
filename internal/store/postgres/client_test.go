package postgres

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{
			name: "explicit dsn wins",
			cfg:  ClientConfig{DSN: "postgres://u:p@db/x", Host: "ignored"},
			want: "postgres://u:p@db/x",
		},
		{
			name: "defaults",
			cfg:  ClientConfig{Host: "localhost", Database: "oracle", User: "u", Password: "p"},
			want: "postgres://u:p@localhost:5432/oracle?sslmode=disable",
		},
		{
			name: "explicit port and ssl",
			cfg:  ClientConfig{Host: "db", Port: 6543, Database: "d", User: "u", Password: "p", SSLMode: "require"},
			want: "postgres://u:p@db:6543/d?sslmode=require",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DSN(tt.cfg))
		})
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	data, err := migrationsFS.ReadFile("migrations/" + entries[0].Name())
	require.NoError(t, err)
	sql := string(data)
	assert.True(t, strings.Contains(sql, "CREATE TABLE IF NOT EXISTS publications"))
	assert.True(t, strings.Contains(sql, "CREATE TABLE IF NOT EXISTS audit_log"))
}
