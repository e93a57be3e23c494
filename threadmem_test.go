package threadmem

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/threadmem/config"
	"github.com/hupe1980/threadmem/core"
	"github.com/hupe1980/threadmem/embedder/mock"
	"github.com/hupe1980/threadmem/internal/testutil"
	"github.com/hupe1980/threadmem/model"
	"github.com/hupe1980/threadmem/vector/hnsw"
	"github.com/hupe1980/threadmem/workingmemory"
)

func foodEmbedder() *mock.KeywordEmbedder {
	return mock.NewKeyword("kw", []string{"food", "pizza", "pasta"}, []string{"weather"})
}

func newMemory(t *testing.T, optFns ...func(o *Options)) *Memory {
	t.Helper()
	m, err := New(optFns...)
	require.NoError(t, err)
	return m
}

func semanticConfig(topK, before, after int) config.Config {
	cfg := config.Default()
	cfg.LastMessages = 0
	cfg.SemanticRecall = config.SemanticRecall{
		Enabled:      true,
		TopK:         topK,
		MessageRange: config.MessageRange{Before: before, After: after},
		Scope:        core.ScopeThread,
	}
	return cfg
}

func save(t *testing.T, m *Memory, threadID string, texts ...string) {
	t.Helper()
	for _, text := range texts {
		_, err := m.SaveMessage(context.Background(), threadID, core.NewTextMessage(core.RoleUser, text))
		require.NoError(t, err)
	}
}

func TestMemory_SaveAndRecall(t *testing.T) {
	ctx := context.Background()
	m := newMemory(t, func(o *Options) {
		o.Config = semanticConfig(1, 1, 0)
		o.Embedder = foodEmbedder()
	})

	th, err := m.CreateThread(ctx, "user-1", "")
	require.NoError(t, err)
	save(t, m, th.ID, "I like pizza", "I like pasta", "What's the weather")

	out, err := m.Recall(ctx, th.ID, "recommend food")
	require.NoError(t, err)
	assert.Equal(t, []string{"I like pizza", "I like pasta"}, testutil.Texts(out.Messages))
	assert.Nil(t, out.WorkingMemory)
}

func TestMemory_SaveMessageAssignsPosition(t *testing.T) {
	ctx := context.Background()
	m := newMemory(t)
	th, err := m.CreateThread(ctx, "user-1", "t")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		msg, err := m.SaveMessage(ctx, th.ID, core.NewTextMessage(core.RoleAssistant, "hi"))
		require.NoError(t, err)
		assert.EqualValues(t, i, msg.Seq)
		assert.Equal(t, th.ID, msg.ThreadID)
	}

	_, err = m.SaveMessage(ctx, "missing", core.NewTextMessage(core.RoleUser, "x"))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestMemory_IndexingFailureKeepsMessage(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.SemanticRecall.Enabled = true
	m := newMemory(t, func(o *Options) {
		o.Config = cfg
		o.Embedder = mock.NewFailing(nil)
	})
	th, err := m.CreateThread(ctx, "user-1", "t")
	require.NoError(t, err)

	stored, err := m.SaveMessage(ctx, th.ID, core.NewTextMessage(core.RoleUser, "hello"))
	assert.ErrorIs(t, err, core.ErrTransientUpstream)
	assert.EqualValues(t, 0, stored.Seq)

	out, err := m.Recall(ctx, th.ID, "")
	require.NoError(t, err)
	assert.True(t, out.Degraded)
	assert.Equal(t, []string{"hello"}, testutil.Texts(out.Messages))
}

func TestMemory_SemanticRecallNeedsEmbedder(t *testing.T) {
	cfg := config.Default()
	cfg.SemanticRecall.Enabled = true
	_, err := New(func(o *Options) { o.Config = cfg })
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	bad := config.Default()
	bad.LastMessages = -3
	_, err = New(func(o *Options) { o.Config = bad })
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestMemory_WorkingMemoryInlineTag(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.WorkingMemory.Enabled = true
	m := newMemory(t, func(o *Options) { o.Config = cfg })
	th, err := m.CreateThread(ctx, "user-1", "t")
	require.NoError(t, err)

	block, err := m.GetWorkingMemory(ctx, th.ID)
	require.NoError(t, err)
	require.NotNil(t, block)
	assert.True(t, block.IsDefault)

	cleaned, updated, err := m.ProcessOutput(ctx, th.ID, "Noted!\n<working_memory>\n# User\n- likes pizza\n</working_memory>")
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, "Noted!", cleaned)

	out, err := m.Recall(ctx, th.ID, "")
	require.NoError(t, err)
	require.NotNil(t, out.WorkingMemory)
	assert.Equal(t, "# User\n- likes pizza", out.WorkingMemory.Content)
	assert.EqualValues(t, 1, out.WorkingMemory.Version)

	instructions, err := m.Instructions(ctx, th.ID)
	require.NoError(t, err)
	assert.Contains(t, instructions, "<working_memory_data>\n# User\n- likes pizza\n</working_memory_data>")
}

func TestMemory_WorkingMemoryStructuredCall(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.WorkingMemory.Enabled = true
	cfg.WorkingMemory.Use = workingmemory.ModeStructuredCall
	cfg.WorkingMemory.Scope = core.ScopeResource
	m := newMemory(t, func(o *Options) { o.Config = cfg })

	first, err := m.CreateThread(ctx, "user-1", "a")
	require.NoError(t, err)
	second, err := m.CreateThread(ctx, "user-1", "b")
	require.NoError(t, err)

	names := []string{}
	for _, tl := range m.Tools() {
		names = append(names, tl.Name())
	}
	assert.ElementsMatch(t, []string{workingmemory.ToolName, "run_state"}, names)

	run, err := m.CreateRun(ctx, first.ID)
	require.NoError(t, err)
	args, err := json.Marshal(map[string]any{"memory": "# User\n- lives in Berlin"})
	require.NoError(t, err)
	result, err := m.ExecuteTool(run, model.ToolCall{
		ID:       "call_0",
		Type:     "function",
		Function: model.ToolCallFunction{Name: workingmemory.ToolName, Arguments: args},
	})
	require.NoError(t, err)
	assert.Equal(t, true, result.(map[string]any)["success"])

	block, err := m.GetWorkingMemory(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "# User\n- lives in Berlin", block.Content, "resource scope is shared across threads")

	cleaned, updated, err := m.ProcessOutput(ctx, first.ID, "<working_memory>ignored</working_memory>")
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Equal(t, "<working_memory>ignored</working_memory>", cleaned)
}

func TestMemory_DisabledWorkingMemory(t *testing.T) {
	ctx := context.Background()
	m := newMemory(t)
	th, err := m.CreateThread(ctx, "user-1", "t")
	require.NoError(t, err)

	text := "Hi <working_memory># User</working_memory>"
	cleaned, updated, err := m.ProcessOutput(ctx, th.ID, text)
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Equal(t, text, cleaned)

	block, err := m.GetWorkingMemory(ctx, th.ID)
	require.NoError(t, err)
	assert.Nil(t, block)

	instructions, err := m.Instructions(ctx, th.ID)
	require.NoError(t, err)
	assert.Empty(t, instructions)

	require.Len(t, m.Tools(), 1)
	assert.Equal(t, "run_state", m.Tools()[0].Name())
}

func TestMemory_DeleteThreadCascades(t *testing.T) {
	ctx := context.Background()
	cfg := semanticConfig(4, 0, 0)
	cfg.SemanticRecall.Scope = core.ScopeResource
	cfg.WorkingMemory.Enabled = true
	idx := hnsw.New()
	m := newMemory(t, func(o *Options) {
		o.Config = cfg
		o.Embedder = foodEmbedder()
		o.Index = idx
	})

	gone, err := m.CreateThread(ctx, "user-1", "old")
	require.NoError(t, err)
	kept, err := m.CreateThread(ctx, "user-1", "new")
	require.NoError(t, err)
	save(t, m, gone.ID, "I like pizza")
	save(t, m, kept.ID, "pizza tonight?")
	_, err = m.UpdateWorkingMemory(ctx, gone.ID, "# User\n- likes pizza")
	require.NoError(t, err)

	require.NoError(t, m.DeleteThread(ctx, gone.ID))

	_, err = m.GetThread(ctx, gone.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	hits, err := idx.Query(ctx, core.ResourceScope("user-1"), core.Embedding{Vector: []float32{1, 0, 1}, Model: "kw"}, 4)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, kept.ID, hits[0].Ref.ThreadID)

	snap, err := m.opts.WorkingMemoryStore.Get(ctx, core.ThreadScope(gone.ID))
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Nil(t, snap)

	list, err := m.ListThreads(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, kept.ID, list[0].ID)
}

func TestMemory_GenerateTitle(t *testing.T) {
	ctx := context.Background()
	llm := model.NewMockModel("titles", "mock")
	llm.AddResponse("Any tips for a dinner party with pasta?", "\"Dinner party pasta tips\"")

	cfg := config.Default()
	cfg.Threads.GenerateTitle = true
	m := newMemory(t, func(o *Options) {
		o.Config = cfg
		o.TitleModel = llm
	})
	th, err := m.CreateThread(ctx, "user-1", "")
	require.NoError(t, err)

	_, err = m.SaveMessage(ctx, th.ID, core.NewTextMessage(core.RoleAssistant, "Welcome"))
	require.NoError(t, err)
	got, err := m.GetThread(ctx, th.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Title, "assistant messages never title a thread")

	save(t, m, th.ID, "Any tips for a dinner party with pasta?", "second question")
	got, err = m.GetThread(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dinner party pasta tips", got.Title)

	reqs := llm.Requests()
	require.Len(t, reqs, 1, "only the first user message of an untitled thread is titled")
	assert.Equal(t, titleInstructions, reqs[0].Instructions)
}

func TestMemory_TitleFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	llm := model.NewMockModel("titles", "mock")
	llm.FailWith(errors.New("boom"))

	cfg := config.Default()
	cfg.Threads.GenerateTitle = true
	m := newMemory(t, func(o *Options) {
		o.Config = cfg
		o.TitleModel = llm
	})
	th, err := m.CreateThread(ctx, "user-1", "")
	require.NoError(t, err)
	save(t, m, th.ID, "\n  Plan my trip to Lisbon\nwith details")

	got, err := m.GetThread(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, "Plan my trip to Lisbon", got.Title)
}

func TestFallbackTitle(t *testing.T) {
	assert.Equal(t, "", fallbackTitle("  \n "))
	assert.Equal(t, "hello", fallbackTitle("hello\nworld"))

	long := strings.Repeat("ü", 70)
	assert.Equal(t, strings.Repeat("ü", maxTitleRunes), fallbackTitle(long))
}

func TestMemory_CreateRun(t *testing.T) {
	ctx := context.Background()
	region := core.NewKey[string]("region")
	m := newMemory(t, func(o *Options) { o.Schema = core.NewSchema(region.Required()) })
	th, err := m.CreateThread(ctx, "user-1", "t")
	require.NoError(t, err)

	a, err := m.CreateRun(ctx, th.ID)
	require.NoError(t, err)
	b, err := m.CreateRun(ctx, th.ID)
	require.NoError(t, err)
	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Equal(t, "user-1", a.ResourceID)

	require.NoError(t, region.Set(a.Container, "eu"))
	_, err = region.Get(b.Container)
	assert.ErrorIs(t, err, core.ErrConfigurationMissing, "containers are isolated per run")
	assert.ErrorIs(t, a.Container.Set("region", 42), core.ErrInvalidArgument)

	fromCtx, ok := core.RunContextFrom(a.Context)
	require.True(t, ok)
	assert.Equal(t, a.RunID, fromCtx.RunID)

	_, err = m.CreateRun(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestMemory_PrepareRequest(t *testing.T) {
	ctx := context.Background()
	region := core.NewKey[string]("region")
	cfg := semanticConfig(1, 0, 0)
	cfg.LastMessages = 2
	cfg.SemanticRecall.Scope = core.ScopeResource
	cfg.WorkingMemory.Enabled = true
	m := newMemory(t, func(o *Options) {
		o.Config = cfg
		o.Embedder = foodEmbedder()
		o.Schema = core.NewSchema(region.Required())
	})

	old, err := m.CreateThread(ctx, "user-1", "old")
	require.NoError(t, err)
	save(t, m, old.ID, "I like pizza")
	current, err := m.CreateThread(ctx, "user-1", "current")
	require.NoError(t, err)
	save(t, m, current.ID, "hello", "what's the weather")

	run, err := m.CreateRun(ctx, current.ID)
	require.NoError(t, err)
	_, _, err = m.PrepareRequest(run, "You help users in {{.region}}.", "pizza")
	assert.ErrorIs(t, err, core.ErrConfigurationMissing)

	require.NoError(t, region.Set(run.Container, "Lisbon"))
	req, recalled, err := m.PrepareRequest(run, "You help users in {{.region}}.", "pizza")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(req.Instructions, "You help users in Lisbon."))
	assert.Contains(t, req.Instructions, "<working_memory_data>")
	assert.Contains(t, req.Instructions, "- user: I like pizza")
	assert.Equal(t, []string{"hello", "what's the weather"}, testutil.Texts(req.Messages))
	require.Len(t, recalled.CrossThread, 1)
	assert.Equal(t, old.ID, recalled.CrossThread[0].ThreadID)

	names := []string{}
	for _, def := range req.Tools {
		names = append(names, def.Function.Name)
	}
	assert.Equal(t, []string{"run_state"}, names)
}
