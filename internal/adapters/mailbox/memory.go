// Package mailbox contains the local mailbox implementations: an in-memory
// mailbox and a loader for directories of .eml files.
package mailbox

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mikey/llm-mail-triage/internal/core"
	"go.uber.org/zap"
)

// MemoryMailbox is an in-memory implementation of core.Mailbox
type MemoryMailbox struct {
	mu         sync.Mutex
	messages   map[string]*core.MessageSummary
	applyErrs  map[string][]error
	fetchErrs  map[string][]error
	listErr    error
	applyCalls int
	logger     *zap.Logger
}

// NewMemoryMailbox creates a new in-memory mailbox
func NewMemoryMailbox(logger *zap.Logger) *MemoryMailbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryMailbox{
		messages:  make(map[string]*core.MessageSummary),
		applyErrs: make(map[string][]error),
		fetchErrs: make(map[string][]error),
		logger:    logger,
	}
}

// Seed adds or replaces messages. Messages without labels land in INBOX.
func (m *MemoryMailbox) Seed(msgs ...core.MessageSummary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range msgs {
		c := msg.Clone()
		if len(c.Labels) == 0 {
			c.Labels = []string{core.LabelInbox}
		}
		m.messages[c.ID] = &c
	}
}

// FailApply queues errors returned by the next Apply calls for id
func (m *MemoryMailbox) FailApply(id string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyErrs[id] = append(m.applyErrs[id], errs...)
}

// FailFetch queues errors returned by the next Fetch calls for id
func (m *MemoryMailbox) FailFetch(id string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchErrs[id] = append(m.fetchErrs[id], errs...)
}

// FailList makes ListCandidateIDs return err until cleared with nil
func (m *MemoryMailbox) FailList(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
}

// ApplyCalls returns how many times Apply was invoked, failures included
func (m *MemoryMailbox) ApplyCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyCalls
}

// Get returns the current state of a message
func (m *MemoryMailbox) Get(id string) (core.MessageSummary, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return core.MessageSummary{}, false
	}
	return msg.Clone(), true
}

// ListCandidateIDs returns non-trashed messages dated at or after since,
// oldest first
func (m *MemoryMailbox) ListCandidateIDs(ctx context.Context, since time.Time, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}

	var candidates []*core.MessageSummary
	for _, msg := range m.messages {
		if msg.HasLabel(core.LabelTrash) || msg.Date.Before(since) {
			continue
		}
		candidates = append(candidates, msg)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Date.Equal(candidates[j].Date) {
			return candidates[i].ID < candidates[j].ID
		}
		return candidates[i].Date.Before(candidates[j].Date)
	})

	ids := make([]string, 0, len(candidates))
	for _, msg := range candidates {
		if limit > 0 && len(ids) == limit {
			break
		}
		ids = append(ids, msg.ID)
	}
	return ids, nil
}

// Fetch returns a copy of the message
func (m *MemoryMailbox) Fetch(ctx context.Context, id string) (core.MessageSummary, error) {
	if err := ctx.Err(); err != nil {
		return core.MessageSummary{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := popErr(m.fetchErrs, id); err != nil {
		return core.MessageSummary{}, err
	}
	msg, ok := m.messages[id]
	if !ok {
		return core.MessageSummary{}, core.NewPermanentError("fetch", id, core.ErrMessageNotFound)
	}
	return msg.Clone(), nil
}

// Apply performs the mutation. Adding a present label or removing an
// absent one is a no-op.
func (m *MemoryMailbox) Apply(ctx context.Context, id string, mut core.Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyCalls++

	if err := popErr(m.applyErrs, id); err != nil {
		return err
	}
	msg, ok := m.messages[id]
	if !ok {
		return core.NewPermanentError("apply", id, core.ErrMessageNotFound)
	}

	remove := mut.RemoveLabels
	add := mut.AddLabels
	if mut.Trash {
		remove = append(append([]string(nil), remove...), core.LabelInbox)
		add = append(append([]string(nil), add...), core.LabelTrash)
	}

	labels := msg.Labels[:0:0]
	for _, l := range msg.Labels {
		if !containsFold(remove, l) {
			labels = append(labels, l)
		}
	}
	for _, l := range add {
		if !containsFold(labels, l) {
			labels = append(labels, l)
		}
	}
	msg.Labels = labels

	m.logger.Debug("Applied mutation",
		zap.String("message_id", id),
		zap.Strings("labels", labels))
	return nil
}

func popErr(queue map[string][]error, id string) error {
	errs := queue[id]
	if len(errs) == 0 {
		return nil
	}
	queue[id] = errs[1:]
	return errs[0]
}

func containsFold(list []string, s string) bool {
	for _, l := range list {
		if strings.EqualFold(l, s) {
			return true
		}
	}
	return false
}
