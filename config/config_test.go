package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/threadmem/core"
	"github.com/hupe1980/threadmem/recall"
	"github.com/hupe1980/threadmem/workingmemory"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.EqualValues(t, 10, cfg.LastMessages)
	assert.False(t, cfg.SemanticRecall.Enabled)
	assert.Equal(t, 4, cfg.SemanticRecall.TopK)
	assert.Equal(t, MessageRange{Before: 1, After: 1}, cfg.SemanticRecall.MessageRange)
	assert.False(t, cfg.WorkingMemory.Enabled)
	assert.Equal(t, workingmemory.ModeInlineTag, cfg.WorkingMemory.Use)
}

func TestParse_Shapes(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		check func(t *testing.T, cfg Config)
	}{
		{
			name: "lastMessages false disables the window",
			yaml: "lastMessages: false",
			check: func(t *testing.T, cfg Config) {
				assert.EqualValues(t, 0, cfg.LastMessages)
			},
		},
		{
			name: "lastMessages number",
			yaml: "lastMessages: 25",
			check: func(t *testing.T, cfg Config) {
				assert.EqualValues(t, 25, cfg.LastMessages)
			},
		},
		{
			name: "semanticRecall true keeps defaults",
			yaml: "semanticRecall: true",
			check: func(t *testing.T, cfg Config) {
				assert.True(t, cfg.SemanticRecall.Enabled)
				assert.Equal(t, 4, cfg.SemanticRecall.TopK)
				assert.Equal(t, core.ScopeThread, cfg.SemanticRecall.Scope)
			},
		},
		{
			name: "semanticRecall object with numeric range",
			yaml: "semanticRecall:\n  topK: 1\n  messageRange: 3\n",
			check: func(t *testing.T, cfg Config) {
				assert.True(t, cfg.SemanticRecall.Enabled)
				assert.Equal(t, 1, cfg.SemanticRecall.TopK)
				assert.Equal(t, MessageRange{Before: 3, After: 3}, cfg.SemanticRecall.MessageRange)
			},
		},
		{
			name: "semanticRecall object with range object and scope",
			yaml: "semanticRecall:\n  messageRange: {before: 1, after: 0}\n  scope: resource\n",
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, MessageRange{Before: 1, After: 0}, cfg.SemanticRecall.MessageRange)
				assert.Equal(t, core.ScopeResource, cfg.SemanticRecall.Scope)
				assert.Equal(t, 4, cfg.SemanticRecall.TopK)
			},
		},
		{
			name: "semanticRecall object may disable itself",
			yaml: "semanticRecall:\n  enabled: false\n  topK: 2\n",
			check: func(t *testing.T, cfg Config) {
				assert.False(t, cfg.SemanticRecall.Enabled)
			},
		},
		{
			name: "working memory and threads",
			yaml: "workingMemory:\n  enabled: true\n  use: structured-call\n  scope: resource\nthreads:\n  generateTitle: true\n",
			check: func(t *testing.T, cfg Config) {
				assert.True(t, cfg.WorkingMemory.Enabled)
				assert.Equal(t, workingmemory.ModeStructuredCall, cfg.WorkingMemory.Use)
				assert.Equal(t, core.ScopeResource, cfg.WorkingMemory.Scope)
				assert.Equal(t, workingmemory.DefaultTemplate, cfg.WorkingMemory.Template)
				assert.True(t, cfg.Threads.GenerateTitle)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml))
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, doc := range []string{
		"lastMessages: true",
		"lastMessages: many",
		"lastMessages: -1",
		"semanticRecall: sometimes",
		"semanticRecall:\n  topK: 0\n",
		"semanticRecall:\n  messageRange: wide\n",
		"semanticRecall:\n  scope: global\n",
		"workingMemory:\n  enabled: true\n  use: telepathy\n",
		"embedder:\n  provider: cohere\n",
	} {
		_, err := Parse([]byte(doc))
		assert.ErrorIs(t, err, core.ErrInvalidArgument, doc)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("THREADMEM_TEST_DB", "memory.db")
	path := filepath.Join(t.TempDir(), "memory.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  path: ${THREADMEM_TEST_DB}\nlastMessages: 5\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory.db", cfg.Storage.Path)
	assert.EqualValues(t, 5, cfg.LastMessages)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	cfg, err := Parse([]byte("lastMessages: false\nsemanticRecall:\n  topK: 1\n  messageRange: {before: 1, after: 0}\nworkingMemory:\n  enabled: true\n  template: \"# Notes\"\n"))
	require.NoError(t, err)

	var ro recall.Options
	cfg.ApplyRecall(&ro)
	assert.Equal(t, 0, ro.LastMessages)
	assert.True(t, ro.SemanticRecall.Enabled)
	assert.Equal(t, 1, ro.SemanticRecall.TopK)
	assert.Equal(t, recall.MessageRange{Before: 1, After: 0}, ro.SemanticRecall.MessageRange)

	wo := workingmemory.Options{Template: workingmemory.DefaultTemplate}
	cfg.ApplyWorkingMemory(&wo)
	assert.True(t, wo.Enabled)
	assert.Equal(t, "# Notes", wo.Template)
	assert.Equal(t, workingmemory.ModeInlineTag, wo.Mode)
}
