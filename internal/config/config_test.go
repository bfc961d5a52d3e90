package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func envOf(values map[string]string) Getenv {
	return func(key string) string { return values[key] }
}

func baseEnv() map[string]string {
	return map[string]string{
		"DB_HOST":                 "db.internal",
		"DB_NAME":                 "clients",
		"DB_USER":                 "looker",
		"DB_PASSWORD":             "secret",
		"SPREADSHEET_ID":          "sheet-123",
		"GOOGLE_CREDENTIALS_JSON": `{"type":"service_account"}`,
		"SYNC_TARGETS":            "campaign_summary:Campaigns:green,daily_spend",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(envOf(baseEnv()))
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 10*time.Second, cfg.Database.Timeout)
	assert.Equal(t, DestinationSheets, cfg.Destination.Kind)
	assert.Equal(t, "USER_ENTERED", cfg.Destination.ValueInput)
	assert.Equal(t, 10000, cfg.Sync.RowLimit)
	assert.Equal(t, 100, cfg.Sync.ChunkSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Sync.ChunkDelay)
	assert.Equal(t, 2*time.Second, cfg.Sync.TargetDelay)
	assert.True(t, cfg.Sync.Metadata)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.False(t, cfg.Notify.Enabled)

	assert.Equal(t, []Target{
		{Name: "campaign_summary", Table: "campaign_summary", Sheet: "Campaigns", Theme: "green"},
		{Name: "daily_spend", Table: "daily_spend", Sheet: "daily_spend", Theme: "blue"},
	}, cfg.Targets)
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["SYNC_CHUNK_SIZE"] = "0"
	env["SYNC_CHUNK_DELAY"] = "250ms"
	env["SYNC_TARGET_DELAY"] = "1.5"
	env["DB_TIMEOUT"] = "30"
	env["SYNC_METADATA"] = "false"

	cfg, err := LoadFrom(envOf(env))
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.Sync.ChunkSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Sync.ChunkDelay)
	assert.Equal(t, 1500*time.Millisecond, cfg.Sync.TargetDelay)
	assert.Equal(t, 30*time.Second, cfg.Database.Timeout)
	assert.False(t, cfg.Sync.Metadata)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(map[string]string)
		want   string
	}{
		{"missing host", func(e map[string]string) { delete(e, "DB_HOST") }, "DB_HOST is required"},
		{"bad driver", func(e map[string]string) { e["DB_DRIVER"] = "oracle" }, `unsupported DB_DRIVER "oracle"`},
		{"sqlite without dsn", func(e map[string]string) { e["DB_DRIVER"] = "sqlite3" }, "DB_DSN is required"},
		{"no credentials", func(e map[string]string) { delete(e, "GOOGLE_CREDENTIALS_JSON") }, "CREDENTIALS_SECRET_ID"},
		{"no spreadsheet", func(e map[string]string) { delete(e, "SPREADSHEET_ID") }, "SPREADSHEET_ID is required"},
		{"xlsx without path", func(e map[string]string) { e["DESTINATION"] = "xlsx" }, "XLSX_PATH is required"},
		{"no targets", func(e map[string]string) { delete(e, "SYNC_TARGETS") }, "at least one sync target"},
		{"duplicate targets", func(e map[string]string) { e["SYNC_TARGETS"] = "a:x,a:y" }, `duplicate name "a"`},
		{"unsafe table", func(e map[string]string) { e["SYNC_TARGETS"] = "a b:x" }, "invalid table name"},
		{"bad integer", func(e map[string]string) { e["SYNC_ROW_LIMIT"] = "lots" }, "SYNC_ROW_LIMIT"},
		{"zero limit", func(e map[string]string) { e["SYNC_ROW_LIMIT"] = "0" }, "SYNC_ROW_LIMIT must be positive"},
		{"bad duration", func(e map[string]string) { e["SYNC_CHUNK_DELAY"] = "soon" }, "SYNC_CHUNK_DELAY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := baseEnv()
			tt.modify(env)

			_, err := LoadFrom(envOf(env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadTargetsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[target]]
name = "campaigns"
table = "reporting.campaign_summary"
sheet = "Campaigns"
theme = "orange"

[[target]]
table = "daily_spend"
`), 0o600))

	env := baseEnv()
	env["SYNC_TARGETS_FILE"] = path

	cfg, err := LoadFrom(envOf(env))
	require.NoError(t, err)
	require.Len(t, cfg.Targets, 2)
	assert.Equal(t, Target{Name: "campaigns", Table: "reporting.campaign_summary", Sheet: "Campaigns", Theme: "orange"}, cfg.Targets[0])
	assert.Equal(t, Target{Name: "daily_spend", Table: "daily_spend", Sheet: "daily_spend", Theme: "blue"}, cfg.Targets[1])

	target, ok := cfg.Target("campaigns")
	assert.True(t, ok)
	assert.Equal(t, "Campaigns", target.Sheet)

	_, ok = cfg.Target("missing")
	assert.False(t, ok)
}

func TestParseTargetsListRejectsExtraFields(t *testing.T) {
	_, err := ParseTargetsList("a:b:c:d")
	assert.Error(t, err)
}

func TestConnectionString(t *testing.T) {
	d := DatabaseConfig{DSN: "file:test.db"}
	assert.Equal(t, "file:test.db", d.ConnectionString())

	d = DatabaseConfig{Host: "h", Port: 5433, Name: "n", User: "u", Password: "p", SSLMode: "disable", Timeout: 5 * time.Second}
	assert.Equal(t, "postgres://u:p@h:5433/n?connect_timeout=5&sslmode=disable", d.ConnectionString())
}

func TestIsRetryableAPIError(t *testing.T) {
	assert.True(t, IsRetryableAPIError(&url.Error{Op: "Post", URL: "https://sheets.googleapis.com", Err: errors.New("connection reset")}))
	assert.True(t, IsRetryableAPIError(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}))
	assert.True(t, IsRetryableAPIError(fmt.Errorf("attempt: %w", context.DeadlineExceeded)))
	assert.False(t, IsRetryableAPIError(&json.UnsupportedValueError{Str: "NaN"}))
	assert.False(t, IsRetryableAPIError(errors.New("sheet name is empty")))
	assert.True(t, IsRetryableAPIError(&googleapi.Error{Code: http.StatusTooManyRequests}))
	assert.True(t, IsRetryableAPIError(&googleapi.Error{Code: http.StatusBadGateway}))
	assert.False(t, IsRetryableAPIError(&googleapi.Error{Code: http.StatusForbidden}))
	assert.False(t, IsRetryableAPIError(&googleapi.Error{Code: http.StatusBadRequest}))
}
