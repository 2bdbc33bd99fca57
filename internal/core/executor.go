package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// PlanMutation derives the minimal mailbox change for d from the message's
// current labels. ok is false when nothing needs to change.
func PlanMutation(d Decision) (m Mutation, ok bool) {
	msg := d.Message

	switch d.Action {
	case ActionLabel:
		seen := make(map[string]struct{}, len(d.LabelsToAdd))
		for _, l := range d.LabelsToAdd {
			if l == "" || msg.HasLabel(l) {
				continue
			}
			if _, dup := seen[l]; dup {
				continue
			}
			seen[l] = struct{}{}
			m.AddLabels = append(m.AddLabels, l)
		}
	case ActionArchive:
		if msg.HasLabel(LabelInbox) {
			m.RemoveLabels = []string{LabelInbox}
		}
	case ActionTrash:
		if !msg.HasLabel(LabelTrash) {
			m.Trash = true
		}
	}

	return m, !m.Empty()
}

// Executor applies decisions to the mailbox
type Executor struct {
	mailbox Mailbox
	retry   *retrier
	logger  *zap.Logger
}

// NewExecutor creates a new executor
func NewExecutor(mailbox Mailbox, retry RetryConfig, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		mailbox: mailbox,
		retry:   newRetrier(retry),
		logger:  logger,
	}
}

// Execute performs the mutation planned for d. Transient failures are
// retried; a nil error means the mailbox reflects the decision.
func (e *Executor) Execute(ctx context.Context, d Decision) error {
	m, ok := PlanMutation(d)
	if !ok {
		e.logger.Debug("Nothing to apply",
			zap.String("message_id", d.Message.ID),
			zap.String("action", string(d.Action)))
		return nil
	}

	attempts, err := e.retry.do(ctx, func(ctx context.Context) error {
		return e.mailbox.Apply(ctx, d.Message.ID, m)
	})
	if err != nil {
		return fmt.Errorf("failed to apply %s after %d attempt(s): %w", d.Action, attempts, err)
	}
	if attempts > 1 {
		e.logger.Info("Mutation applied after retry",
			zap.String("message_id", d.Message.ID),
			zap.Int("attempts", attempts))
	}
	return nil
}

// Fetch reads a message with the same retry policy as mutations
func (e *Executor) Fetch(ctx context.Context, id string) (MessageSummary, error) {
	var msg MessageSummary
	_, err := e.retry.do(ctx, func(ctx context.Context) error {
		var ferr error
		msg, ferr = e.mailbox.Fetch(ctx, id)
		return ferr
	})
	return msg, err
}
