package core_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentzero/graphmem-go/pkg/core"
)

func TestDefaultConfig(t *testing.T) {
	cfg := core.DefaultConfig()
	assert.Equal(t, "file", cfg.Log.Backend)
	assert.Equal(t, "./memory.jsonl", cfg.Log.Path)
	assert.Nil(t, cfg.LLM)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *core.Config
		wantErr bool
	}{
		{
			name:   "valid file backend",
			config: &core.Config{Log: core.LogConfig{Backend: "file", Path: "./mem.jsonl"}},
		},
		{
			name:    "file backend without path",
			config:  &core.Config{Log: core.LogConfig{Backend: "file"}},
			wantErr: true,
		},
		{
			name:   "valid sqlite backend",
			config: &core.Config{Log: core.LogConfig{Backend: "sqlite", Path: "./mem.db"}},
		},
		{
			name: "valid postgres backend",
			config: &core.Config{Log: core.LogConfig{
				Backend: "postgres", Host: "localhost", DBName: "graphmem",
			}},
		},
		{
			name:    "postgres backend without host",
			config:  &core.Config{Log: core.LogConfig{Backend: "postgres", DBName: "graphmem"}},
			wantErr: true,
		},
		{
			name:    "mysql backend without database",
			config:  &core.Config{Log: core.LogConfig{Backend: "mysql", Host: "localhost"}},
			wantErr: true,
		},
		{
			name:    "unknown backend",
			config:  &core.Config{Log: core.LogConfig{Backend: "redis", Path: "x"}},
			wantErr: true,
		},
		{
			name: "unsupported llm provider",
			config: &core.Config{
				Log: core.LogConfig{Backend: "file", Path: "./mem.jsonl"},
				LLM: &core.LLMConfig{Provider: "llama.cpp", APIKey: "k"},
			},
			wantErr: true,
		},
		{
			name: "openai llm provider",
			config: &core.Config{
				Log: core.LogConfig{Backend: "file", Path: "./mem.jsonl"},
				LLM: &core.LLMConfig{Provider: "openai", APIKey: "k"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("MEMORY_BACKEND", "")
	t.Setenv("LLM_API_KEY", "")

	cfg, err := core.LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Log.Backend)
	assert.Nil(t, cfg.LLM)
}

func TestLoadConfigFromEnv_Sqlite(t *testing.T) {
	t.Setenv("MEMORY_BACKEND", "sqlite")
	t.Setenv("MEMORY_PATH", "/tmp/mem.db")
	t.Setenv("MEMORY_TABLE", "memories")
	t.Setenv("MEMORY_AUTO_COMPACT", "true")
	t.Setenv("MEMORY_COMPACT_THRESHOLD", "512")

	cfg, err := core.LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Log.Backend)
	assert.Equal(t, "/tmp/mem.db", cfg.Log.Path)
	assert.Equal(t, "memories", cfg.Log.TableName)
	assert.True(t, cfg.Compaction.Auto)
	assert.Equal(t, 512, cfg.Compaction.Threshold)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFromEnv_Postgres(t *testing.T) {
	t.Setenv("MEMORY_BACKEND", "postgres")
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_PORT", "5433")
	t.Setenv("POSTGRES_USER", "graphmem")
	t.Setenv("POSTGRES_DATABASE", "memories")

	cfg, err := core.LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Log.Backend)
	assert.Equal(t, "db.internal", cfg.Log.Host)
	assert.Equal(t, 5433, cfg.Log.Port)
	assert.Equal(t, "graphmem", cfg.Log.User)
	assert.Equal(t, "memories", cfg.Log.DBName)
	assert.Equal(t, "disable", cfg.Log.SSLMode)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFromEnv_LLM(t *testing.T) {
	t.Setenv("MEMORY_BACKEND", "file")
	t.Setenv("LLM_API_KEY", "sk-test")
	t.Setenv("LLM_MODEL", "gpt-4o-mini")

	cfg, err := core.LoadConfigFromEnv()
	require.NoError(t, err)
	require.NotNil(t, cfg.LLM)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
}

func TestLoadConfigFromJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"log": {"backend": "file", "path": "./mem.jsonl"},
		"query": {"default_limit": 5, "recency_halflife_hours": 24},
		"compaction": {"auto": true, "threshold": 2048}
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := core.LoadConfigFromJSON(path)
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Log.Backend)
	assert.Equal(t, 5, cfg.Query.DefaultLimit)
	assert.Equal(t, 24.0, cfg.Query.RecencyHalflifeHours)
	assert.True(t, cfg.Compaction.Auto)
	assert.Equal(t, 2048, cfg.Compaction.Threshold)
}

func TestLoadConfigFromJSON_Errors(t *testing.T) {
	_, err := core.LoadConfigFromJSON(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))
	_, err = core.LoadConfigFromJSON(path)
	assert.Error(t, err)
}
