package main

import (
	"context"
	"errors"
	"testing"

	"webrag/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBuildApp_FlatBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Root = t.TempDir()
	cfg.LLM.APIKey = ""

	a, err := buildApp(cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.manager)
	require.NotNil(t, a.provider)

	restored, err := a.manager.Restore(context.Background())
	require.NoError(t, err)
	assert.Zero(t, restored)
	assert.Empty(t, a.manager.List())
}

func TestBuildApp_InvalidChunking(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Root = t.TempDir()
	cfg.Chunking.Overlap = cfg.Chunking.Size

	_, err := buildApp(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestUnavailableGenerator(t *testing.T) {
	cause := errors.New("llm api key is required")

	answer, err := unavailableGenerator{err: cause}.Generate(context.Background(), "q", "ctx")

	assert.Empty(t, answer)
	assert.ErrorIs(t, err, cause)
}
