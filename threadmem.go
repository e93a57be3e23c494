// Package threadmem provides a high-level façade over the memory components
// of a conversational agent: threads, semantic recall and working memory.
// Most applications interact with this package by:
//  1. Creating a Memory via New() (optionally overriding the default in-memory stores)
//  2. Saving every user and assistant message with SaveMessage
//  3. Calling Recall before each generation step and ProcessOutput after it
//
// All defaults are safe for local development and testing; production
// deployments typically supply durable stores (thread/bolt, workingmemory/bolt,
// a persistent vector/chromem index), a real embedder and a structured logger.
package threadmem

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/threadmem/config"
	"github.com/hupe1980/threadmem/core"
	"github.com/hupe1980/threadmem/logging"
	"github.com/hupe1980/threadmem/model"
	"github.com/hupe1980/threadmem/recall"
	"github.com/hupe1980/threadmem/thread"
	"github.com/hupe1980/threadmem/tool"
	"github.com/hupe1980/threadmem/vector/chromem"
	"github.com/hupe1980/threadmem/workingmemory"
)

// Options configures a Memory instance.
type Options struct {
	// Config is the caller-facing behaviour (recency window, semantic recall,
	// working memory, titles).
	Config config.Config

	// Stores (defaults to in-memory implementations if not provided)
	Threads            core.ThreadStore
	WorkingMemoryStore core.WorkingMemoryStore
	// Index defaults to an in-memory chromem index when an Embedder is set.
	Index core.VectorIndex

	// Embedder is required when semantic recall is enabled.
	Embedder core.Embedder

	// TitleModel generates thread titles. Without it titles fall back to the
	// first line of the first user message.
	TitleModel model.Model

	// Schema is the RuntimeContainer schema for runs created by CreateRun.
	// Nil accepts any key.
	Schema *core.Schema

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Memory is the façade aggregating the stores, the recall assembler and the
// working memory updater. It is safe for concurrent use.
type Memory struct {
	opts      Options
	threads   core.ThreadStore
	index     core.VectorIndex
	embedder  core.Embedder
	updater   *workingmemory.Updater
	assembler *recall.Assembler
	titles    *titleGenerator
}

// New creates a Memory with optional overrides. Any unset store is
// initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) (*Memory, error) {
	opts := Options{
		Config: config.Default(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Threads == nil {
		opts.Threads = thread.NewInMemoryStore(func(o *thread.Options) { o.Logger = logging.ForComponent(opts.Logger, "thread_store") })
	}
	if opts.WorkingMemoryStore == nil {
		opts.WorkingMemoryStore = workingmemory.NewInMemoryStore()
	}
	if opts.Index == nil && opts.Embedder != nil {
		idx, err := chromem.New(func(o *chromem.Options) {
			o.PersistDir = opts.Config.Storage.VectorDir
			o.Logger = logging.ForComponent(opts.Logger, "vector_index")
		})
		if err != nil {
			return nil, err
		}
		opts.Index = idx
	}

	updater, err := workingmemory.NewUpdater(opts.WorkingMemoryStore, func(o *workingmemory.Options) {
		opts.Config.ApplyWorkingMemory(o)
		o.Logger = logging.ForComponent(opts.Logger, "working_memory")
	})
	if err != nil {
		return nil, err
	}

	assembler, err := recall.NewAssembler(opts.Threads, opts.Index, opts.Embedder, updater, func(o *recall.Options) {
		opts.Config.ApplyRecall(o)
		o.Logger = logging.ForComponent(opts.Logger, "recall")
	})
	if err != nil {
		return nil, err
	}

	return &Memory{
		opts:      opts,
		threads:   opts.Threads,
		index:     opts.Index,
		embedder:  opts.Embedder,
		updater:   updater,
		assembler: assembler,
		titles:    &titleGenerator{model: opts.TitleModel, logger: logging.ForComponent(opts.Logger, "title")},
	}, nil
}

// Threads exposes the underlying thread store.
func (m *Memory) Threads() core.ThreadStore { return m.threads }

// WorkingMemory exposes the working memory updater.
func (m *Memory) WorkingMemory() *workingmemory.Updater { return m.updater }

// CreateThread starts a new conversation owned by resourceID.
func (m *Memory) CreateThread(ctx context.Context, resourceID, title string) (*core.Thread, error) {
	return m.threads.CreateThread(ctx, resourceID, title)
}

// GetThread loads a thread.
func (m *Memory) GetThread(ctx context.Context, threadID string) (*core.Thread, error) {
	return m.threads.GetThread(ctx, threadID)
}

// ListThreads returns the resource's threads ordered by creation time.
func (m *Memory) ListThreads(ctx context.Context, resourceID string) ([]*core.Thread, error) {
	return m.threads.ListThreads(ctx, resourceID)
}

// UpdateThread replaces the title (unless empty) and merges metadata.
func (m *Memory) UpdateThread(ctx context.Context, threadID, title string, metadata map[string]string) (*core.Thread, error) {
	return m.threads.UpdateThread(ctx, threadID, title, metadata)
}

// DeleteThread removes the thread, its embeddings and its thread-scoped
// working memory. Resource-scoped working memory is shared with the
// resource's other threads and is kept.
func (m *Memory) DeleteThread(ctx context.Context, threadID string) error {
	th, err := m.threads.GetThread(ctx, threadID)
	if err != nil {
		return err
	}
	if err := m.threads.DeleteThread(ctx, threadID); err != nil {
		return err
	}

	var errs []error
	if m.index != nil {
		for _, scope := range []core.Scope{core.ThreadScope(th.ID), core.ResourceScope(th.ResourceID)} {
			if err := m.index.DeleteThread(ctx, scope, th.ID); err != nil {
				errs = append(errs, fmt.Errorf("delete embeddings in %s: %w", scope, err))
			}
		}
	}
	if m.updater.Enabled() && m.opts.Config.WorkingMemory.Scope == core.ScopeThread {
		err := m.updater.Forget(ctx, workingmemory.Target{ThreadID: th.ID, ResourceID: th.ResourceID})
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			errs = append(errs, fmt.Errorf("delete working memory: %w", err))
		}
	}
	m.opts.Logger.Info("memory.thread.delete", "thread_id", th.ID, "resource_id", th.ResourceID)
	return errors.Join(errs...)
}

// SaveMessage appends msg to the thread, indexes its embedding and, for the
// first user message of an untitled thread, generates a title.
//
// The append is committed before indexing. If indexing fails the stored
// message is returned together with the error and IndexMessage can retry.
func (m *Memory) SaveMessage(ctx context.Context, threadID string, msg core.Message) (core.Message, error) {
	th, err := m.threads.GetThread(ctx, threadID)
	if err != nil {
		return core.Message{}, err
	}
	seq, err := m.threads.AppendMessage(ctx, threadID, msg)
	if err != nil {
		return core.Message{}, err
	}
	stored, err := m.threads.GetMessage(ctx, core.MessageRef{ThreadID: threadID, Seq: seq})
	if err != nil {
		return core.Message{}, err
	}

	if m.opts.Config.Threads.GenerateTitle && th.Title == "" && stored.Role == core.RoleUser {
		m.generateTitle(ctx, th, stored.Content.Text)
	}

	if err := m.indexMessage(ctx, th, stored); err != nil {
		return stored, err
	}
	return stored, nil
}

// IndexMessage (re)embeds a stored message. Messages without text and
// messages of roles other than user and assistant are skipped.
func (m *Memory) IndexMessage(ctx context.Context, ref core.MessageRef) error {
	th, err := m.threads.GetThread(ctx, ref.ThreadID)
	if err != nil {
		return err
	}
	msg, err := m.threads.GetMessage(ctx, ref)
	if err != nil {
		return err
	}
	return m.indexMessage(ctx, th, msg)
}

func (m *Memory) indexMessage(ctx context.Context, th *core.Thread, msg core.Message) error {
	if m.index == nil || m.embedder == nil || !m.opts.Config.SemanticRecall.Enabled {
		return nil
	}
	if msg.Content.Text == "" || (msg.Role != core.RoleUser && msg.Role != core.RoleAssistant) {
		return nil
	}
	vec, err := m.embedder.Embed(ctx, msg.Content.Text)
	if err != nil {
		m.opts.Logger.Warn("memory.index.failed", "ref", msg.Ref().String(), "error", err.Error())
		return fmt.Errorf("embed %s: %w", msg.Ref(), err)
	}
	scope := core.ScopeFor(m.opts.Config.SemanticRecall.Scope, th.ID, th.ResourceID)
	rec := core.EmbeddingRecord{
		Ref:       msg.Ref(),
		Embedding: core.Embedding{Vector: vec, Model: m.embedder.Model()},
	}
	if err := m.index.Upsert(ctx, scope, rec); err != nil {
		return fmt.Errorf("index %s: %w", msg.Ref(), err)
	}
	m.opts.Logger.Debug("memory.index", "ref", msg.Ref().String(), "scope", scope.Key())
	return nil
}

func (m *Memory) generateTitle(ctx context.Context, th *core.Thread, text string) {
	title := m.titles.generate(ctx, text)
	if title == "" {
		return
	}
	if _, err := m.threads.UpdateThread(ctx, th.ID, title, nil); err != nil {
		m.opts.Logger.Warn("thread.title.failed", "thread_id", th.ID, "error", err.Error())
		return
	}
	th.Title = title
}

// Recall assembles the context window for the next generation step of
// threadID. query is embedded for semantic recall; when empty the latest user
// message is used.
func (m *Memory) Recall(ctx context.Context, threadID, query string) (*recall.Context, error) {
	th, err := m.threads.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return m.assembler.Assemble(ctx, recall.Request{ThreadID: th.ID, ResourceID: th.ResourceID, Query: query})
}

// ProcessOutput applies an inline working memory update found in generated
// text and returns the text with the update block removed.
func (m *Memory) ProcessOutput(ctx context.Context, threadID, text string) (cleaned string, updated bool, err error) {
	target, err := m.target(ctx, threadID)
	if err != nil {
		return text, false, err
	}
	return m.updater.ProcessOutput(ctx, target, text)
}

// UpdateWorkingMemory replaces the working memory document visible from
// threadID.
func (m *Memory) UpdateWorkingMemory(ctx context.Context, threadID, document string) (*core.WorkingMemorySnapshot, error) {
	target, err := m.target(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return m.updater.Update(ctx, target, document)
}

// GetWorkingMemory returns the working memory block visible from threadID,
// or nil when working memory is disabled.
func (m *Memory) GetWorkingMemory(ctx context.Context, threadID string) (*workingmemory.Block, error) {
	target, err := m.target(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return m.updater.Current(ctx, target)
}

// Instructions renders the system prompt section describing the working
// memory of threadID. It is empty when working memory is disabled.
func (m *Memory) Instructions(ctx context.Context, threadID string) (string, error) {
	target, err := m.target(ctx, threadID)
	if err != nil {
		return "", err
	}
	return m.updater.Instructions(ctx, target)
}

func (m *Memory) target(ctx context.Context, threadID string) (workingmemory.Target, error) {
	th, err := m.threads.GetThread(ctx, threadID)
	if err != nil {
		return workingmemory.Target{}, err
	}
	return workingmemory.Target{ThreadID: th.ID, ResourceID: th.ResourceID}, nil
}

// Tools returns the tools a generation step may call: the working memory
// tool in structured-call mode and the run_state tool.
func (m *Memory) Tools() []tool.Tool {
	return append(m.updater.Tools(), tool.NewRunStateTool())
}

// ExecuteTool runs a tool call emitted by a model within run.
func (m *Memory) ExecuteTool(run *core.RunContext, call model.ToolCall) (any, error) {
	return tool.Execute(run, m.Tools(), call)
}

// CreateRun starts a run on threadID with a fresh RuntimeContainer bound to
// the configured schema. The returned RunContext is also reachable from its
// own Context via core.RunContextFrom.
func (m *Memory) CreateRun(ctx context.Context, threadID string) (*core.RunContext, error) {
	th, err := m.threads.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	run := core.NewRunContext(ctx, th.ID, th.ResourceID, m.opts.Schema, m.opts.Logger)
	run.Context = core.WithRunContext(run.Context, run)
	return run, nil
}
