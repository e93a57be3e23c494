package workingmemory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/threadmem/core"
	"github.com/hupe1980/threadmem/internal/util"
	"github.com/hupe1980/threadmem/logging"
	"github.com/hupe1980/threadmem/tool"
)

// Mode selects how generation output delivers working memory updates.
type Mode string

const (
	// ModeInlineTag parses <working_memory> blocks out of generated text.
	ModeInlineTag Mode = "inline-tag"
	// ModeStructuredCall exposes the update_working_memory tool.
	ModeStructuredCall Mode = "structured-call"
)

// ParseMode validates a mode name. The empty string selects ModeInlineTag.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeInlineTag:
		return ModeInlineTag, nil
	case ModeStructuredCall:
		return ModeStructuredCall, nil
	default:
		return "", fmt.Errorf("%w: unknown working memory mode %q", core.ErrInvalidArgument, s)
	}
}

// DefaultTemplate is used when no template is configured.
const DefaultTemplate = `# User Information
- **First Name**:
- **Last Name**:
- **Location**:
- **Occupation**:
- **Interests**:
- **Goals**:
- **Events**:
- **Facts**:
- **Projects**:
`

// Options configures an Updater.
type Options struct {
	Enabled bool
	Mode    Mode
	// Template is the Markdown skeleton shown before the first update. It may
	// reference {{.ThreadID}} and {{.ResourceID}}.
	Template string
	// Scope selects thread or resource scoped memory.
	Scope  core.ScopeKind
	Logger logging.Logger
}

// Target names the conversation an update belongs to. The configured scope
// decides which of the two identifiers keys the snapshot.
type Target struct {
	ThreadID   string
	ResourceID string
}

// Block is the working memory as presented to the generation step.
type Block struct {
	Scope   core.Scope `json:"scope"`
	Content string     `json:"content"`
	Version int64      `json:"version"`
	// IsDefault reports that no update was written yet and Content is the
	// rendered template.
	IsDefault bool `json:"is_default"`
}

// strategy is the per-mode behaviour, picked once in NewUpdater.
type strategy interface {
	mode() Mode
	// extract returns the replacement document found in text, if any, and
	// the text to show to the caller.
	extract(text string) (document, cleaned string, found bool)
	tools(u *Updater) []tool.Tool
	instructions() string
}

// Updater applies working memory updates to a store. A disabled Updater is
// inert: it returns text unchanged, ignores updates and exposes no tools.
type Updater struct {
	store    core.WorkingMemoryStore
	strategy strategy
	locks    keyedMutex
	opts     Options
}

// NewUpdater creates an Updater writing to store.
func NewUpdater(store core.WorkingMemoryStore, optFns ...func(o *Options)) (*Updater, error) {
	opts := Options{
		Enabled:  true,
		Mode:     ModeInlineTag,
		Template: DefaultTemplate,
		Scope:    core.ScopeThread,
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Scope != core.ScopeThread && opts.Scope != core.ScopeResource {
		return nil, fmt.Errorf("%w: unknown working memory scope %q", core.ErrInvalidArgument, opts.Scope)
	}

	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	u := &Updater{store: store, opts: opts}
	switch mode {
	case ModeStructuredCall:
		u.strategy = structuredCall{}
	default:
		u.strategy = inlineTag{}
	}
	u.opts.Mode = u.strategy.mode()
	if opts.Enabled && store == nil {
		return nil, fmt.Errorf("%w: working memory store must not be nil", core.ErrInvalidArgument)
	}
	return u, nil
}

// Enabled reports whether the updater is active.
func (u *Updater) Enabled() bool { return u.opts.Enabled }

// Mode returns the configured update mode.
func (u *Updater) Mode() Mode { return u.opts.Mode }

// Scope resolves the snapshot scope for t.
func (u *Updater) Scope(t Target) (core.Scope, error) {
	scope := core.ScopeFor(u.opts.Scope, t.ThreadID, t.ResourceID)
	if err := scope.Validate(); err != nil {
		return core.Scope{}, err
	}
	return scope, nil
}

// ProcessOutput applies an inline update found in text and returns the text
// to show to the caller. updated reports whether the snapshot changed.
// Without a complete block the text is returned unchanged.
func (u *Updater) ProcessOutput(ctx context.Context, t Target, text string) (cleaned string, updated bool, err error) {
	if !u.opts.Enabled {
		return text, false, nil
	}
	document, cleaned, found := u.strategy.extract(text)
	if !found {
		return text, false, nil
	}
	_, changed, err := u.update(ctx, t, document)
	if err != nil {
		return text, false, err
	}
	return cleaned, changed, nil
}

// Update replaces the working memory document of t's scope. Surrounding
// whitespace is trimmed; writing the current content again is a no-op.
// A disabled updater returns (nil, nil).
func (u *Updater) Update(ctx context.Context, t Target, document string) (*core.WorkingMemorySnapshot, error) {
	if !u.opts.Enabled {
		return nil, nil
	}
	snap, _, err := u.update(ctx, t, document)
	return snap, err
}

// update writes document under the scope lock. changed compares against the
// version read under the same lock.
func (u *Updater) update(ctx context.Context, t Target, document string) (*core.WorkingMemorySnapshot, bool, error) {
	scope, err := u.Scope(t)
	if err != nil {
		return nil, false, err
	}

	unlock := u.locks.lock(scope.Key())
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var before int64
	prev, err := u.store.Get(ctx, scope)
	switch {
	case err == nil:
		before = prev.Version
	case !errors.Is(err, core.ErrNotFound):
		return nil, false, err
	}
	snap, err := u.store.Put(ctx, scope, strings.TrimSpace(document))
	if err != nil {
		return nil, false, fmt.Errorf("update working memory: %w", err)
	}
	changed := snap.Version != before
	u.opts.Logger.Info("workingmemory.update",
		"scope", scope.Key(),
		"version", snap.Version,
		"changed", changed,
		"mode", string(u.opts.Mode),
	)
	return snap, changed, nil
}

// Current returns the working memory block for t: the stored snapshot, or the
// rendered template when nothing was written yet. A disabled updater returns
// (nil, nil).
func (u *Updater) Current(ctx context.Context, t Target) (*Block, error) {
	if !u.opts.Enabled {
		return nil, nil
	}
	scope, err := u.Scope(t)
	if err != nil {
		return nil, err
	}
	snap, err := u.store.Get(ctx, scope)
	switch {
	case err == nil:
		return &Block{Scope: scope, Content: snap.Content, Version: snap.Version}, nil
	case errors.Is(err, core.ErrNotFound):
		content, err := u.renderTemplate(t)
		if err != nil {
			return nil, err
		}
		return &Block{Scope: scope, Content: content, IsDefault: true}, nil
	default:
		return nil, err
	}
}

func (u *Updater) renderTemplate(t Target) (string, error) {
	out, err := util.RenderTemplate(u.opts.Template, map[string]any{
		"ThreadID":   t.ThreadID,
		"ResourceID": t.ResourceID,
	})
	if err != nil {
		return "", fmt.Errorf("%w: working memory template: %v", core.ErrInvalidArgument, err)
	}
	return strings.TrimSpace(out), nil
}

// Instructions renders the system prompt section that shows the model its
// working memory and explains how to update it.
func (u *Updater) Instructions(ctx context.Context, t Target) (string, error) {
	block, err := u.Current(ctx, t)
	if err != nil || block == nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(u.strategy.instructions())
	b.WriteString("\n\n<working_memory_data>\n")
	b.WriteString(block.Content)
	b.WriteString("\n</working_memory_data>")
	return b.String(), nil
}

// Tools returns the tools a generation step may call. Only structured-call
// mode exposes any.
func (u *Updater) Tools() []tool.Tool {
	if !u.opts.Enabled {
		return nil
	}
	return u.strategy.tools(u)
}

// Forget deletes the snapshot of t's scope.
func (u *Updater) Forget(ctx context.Context, t Target) error {
	if u.store == nil {
		return nil
	}
	scope, err := u.Scope(t)
	if err != nil {
		return err
	}
	unlock := u.locks.lock(scope.Key())
	defer unlock()
	return u.store.Delete(ctx, scope)
}

// keyedMutex hands out one mutex per key and drops it when the last holder
// releases it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = map[string]*refLock{}
	}
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
