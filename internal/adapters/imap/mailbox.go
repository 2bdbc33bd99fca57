// Package imap implements core.Mailbox over IMAP. Labels map to keyword
// flags, archive and trash map to folder moves.
package imap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/mikey/llm-mail-triage/internal/adapters/mailbox"
	"github.com/mikey/llm-mail-triage/internal/core"
	"go.uber.org/zap"
)

// Options configures the IMAP connection and folder layout
type Options struct {
	Host          string
	Port          int
	Username      string
	Password      string
	TLS           bool
	Mailbox       string
	ArchiveFolder string
	TrashFolder   string
}

// Mailbox is an IMAP implementation of core.Mailbox. Every call opens its
// own connection.
type Mailbox struct {
	opts   Options
	logger *zap.Logger
}

// New creates a new IMAP mailbox
func New(opts Options, logger *zap.Logger) *Mailbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Mailbox == "" {
		opts.Mailbox = "INBOX"
	}
	if opts.Port == 0 {
		opts.Port = 993
	}
	return &Mailbox{opts: opts, logger: logger}
}

func (m *Mailbox) connect(ctx context.Context) (*imapclient.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	addr := net.JoinHostPort(m.opts.Host, strconv.Itoa(m.opts.Port))

	var (
		client *imapclient.Client
		err    error
	)
	if m.opts.TLS {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, core.NewTransientError("connect", "", fmt.Errorf("failed to connect to IMAP %s: %w", addr, err))
	}

	if err := client.Login(m.opts.Username, m.opts.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, core.NewPermanentError("login", "", fmt.Errorf("authentication failed for %s: %w", m.opts.Username, err))
	}
	return client, nil
}

// session connects, selects the configured mailbox and runs fn
func (m *Mailbox) session(ctx context.Context, op, id string, fn func(c *imapclient.Client) error) error {
	client, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(m.opts.Mailbox, nil).Wait(); err != nil {
		return classify(op, id, fmt.Errorf("failed to select %s: %w", m.opts.Mailbox, err))
	}
	if err := fn(client); err != nil {
		return classify(op, id, err)
	}
	return nil
}

type candidate struct {
	uid  imap.UID
	date time.Time
}

// ListCandidateIDs returns UIDs as decimal strings
func (m *Mailbox) ListCandidateIDs(ctx context.Context, since time.Time, limit int) ([]string, error) {
	var ids []string
	err := m.session(ctx, "list", "", func(c *imapclient.Client) error {
		criteria := &imap.SearchCriteria{}
		if !since.IsZero() {
			// SINCE only has day granularity, refined below
			criteria.Since = since
		}
		data, err := c.UIDSearch(criteria, nil).Wait()
		if err != nil {
			return fmt.Errorf("failed to search messages: %w", err)
		}
		uids := data.AllUIDs()
		if len(uids) == 0 {
			return nil
		}

		fetchCmd := c.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{UID: true, InternalDate: true})
		var cands []candidate
		for {
			msg := fetchCmd.Next()
			if msg == nil {
				break
			}
			buf, err := msg.Collect()
			if err != nil {
				continue
			}
			cands = append(cands, candidate{uid: buf.UID, date: buf.InternalDate})
		}
		if err := fetchCmd.Close(); err != nil {
			return fmt.Errorf("failed to fetch internal dates: %w", err)
		}

		ids = selectCandidates(cands, since, limit)
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Debug("Listed IMAP messages",
		zap.String("mailbox", m.opts.Mailbox),
		zap.Int("count", len(ids)))
	return ids, nil
}

func selectCandidates(cands []candidate, since time.Time, limit int) []string {
	kept := cands[:0:0]
	for _, c := range cands {
		if !since.IsZero() && c.date.Before(since) {
			continue
		}
		kept = append(kept, c)
	}
	sort.Slice(kept, func(i, j int) bool {
		if !kept[i].date.Equal(kept[j].date) {
			return kept[i].date.Before(kept[j].date)
		}
		return kept[i].uid < kept[j].uid
	})
	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	ids := make([]string, len(kept))
	for i, c := range kept {
		ids[i] = strconv.FormatUint(uint64(c.uid), 10)
	}
	return ids
}

// Fetch reads the full message without marking it seen
func (m *Mailbox) Fetch(ctx context.Context, id string) (core.MessageSummary, error) {
	uid, err := parseUID(id)
	if err != nil {
		return core.MessageSummary{}, err
	}

	var summary core.MessageSummary
	err = m.session(ctx, "fetch", id, func(c *imapclient.Client) error {
		section := &imap.FetchItemBodySection{Peek: true}
		fetchCmd := c.Fetch(imap.UIDSetNum(uid), &imap.FetchOptions{
			UID:          true,
			Flags:        true,
			InternalDate: true,
			BodySection:  []*imap.FetchItemBodySection{section},
		})
		defer fetchCmd.Close()

		msg := fetchCmd.Next()
		if msg == nil {
			return core.NewPermanentError("fetch", id, core.ErrMessageNotFound)
		}
		buf, err := msg.Collect()
		if err != nil {
			return fmt.Errorf("failed to collect message: %w", err)
		}

		raw := buf.FindBodySection(section)
		summary, err = mailbox.ParseMessage(bytes.NewReader(raw), id)
		if err != nil {
			return core.NewPermanentError("fetch", id, err)
		}
		summary.ID = id
		summary.Date = receivedAt(buf.InternalDate, summary.Date)
		summary.Labels = labelsFromFlags(m.opts.Mailbox, buf.Flags)
		return fetchCmd.Close()
	})
	return summary, err
}

// receivedAt is the server arrival time, the same key ListCandidateIDs
// filters on. The Date header is sender controlled and only a fallback.
func receivedAt(internal, header time.Time) time.Time {
	if internal.IsZero() {
		return header
	}
	return internal
}

// Apply stores keyword flags, then moves the message if it leaves the inbox
func (m *Mailbox) Apply(ctx context.Context, id string, mut core.Mutation) error {
	uid, err := parseUID(id)
	if err != nil {
		return err
	}

	add, remove, leaveInbox := flagChanges(mut)
	target := ""
	switch {
	case mut.Trash:
		target = m.opts.TrashFolder
	case leaveInbox:
		target = m.opts.ArchiveFolder
	}

	return m.session(ctx, "apply", id, func(c *imapclient.Client) error {
		set := imap.UIDSetNum(uid)
		if len(add) > 0 {
			if err := c.Store(set, &imap.StoreFlags{Op: imap.StoreFlagsAdd, Silent: true, Flags: add}, nil).Close(); err != nil {
				return fmt.Errorf("failed to add flags: %w", err)
			}
		}
		if len(remove) > 0 {
			if err := c.Store(set, &imap.StoreFlags{Op: imap.StoreFlagsDel, Silent: true, Flags: remove}, nil).Close(); err != nil {
				return fmt.Errorf("failed to remove flags: %w", err)
			}
		}
		if target != "" {
			if _, err := c.Move(set, target).Wait(); err != nil {
				return fmt.Errorf("failed to move to %s: %w", target, err)
			}
			m.logger.Debug("Moved IMAP message", zap.String("uid", id), zap.String("folder", target))
		}
		return nil
	})
}

// flagChanges translates label edits into IMAP flags. Removing INBOX is
// reported separately since it becomes a move.
func flagChanges(mut core.Mutation) (add, remove []imap.Flag, leaveInbox bool) {
	for _, l := range mut.AddLabels {
		if f, ok := flagFor(l); ok {
			add = append(add, f)
		}
	}
	for _, l := range mut.RemoveLabels {
		if strings.EqualFold(l, core.LabelInbox) {
			leaveInbox = true
			continue
		}
		if f, ok := flagFor(l); ok {
			remove = append(remove, f)
		}
	}
	return add, remove, leaveInbox
}

func flagFor(label string) (imap.Flag, bool) {
	switch strings.ToUpper(label) {
	case core.LabelStarred:
		return imap.FlagFlagged, true
	case core.LabelInbox, core.LabelTrash:
		return "", false
	}
	kw := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '(', ')', '{', '%', '*', '"', '\\', ']':
			return '_'
		}
		return r
	}, strings.TrimSpace(label))
	return imap.Flag(kw), kw != ""
}

func labelsFromFlags(mailboxName string, flags []imap.Flag) []string {
	var labels []string
	if strings.EqualFold(mailboxName, core.LabelInbox) {
		labels = append(labels, core.LabelInbox)
	}
	for _, f := range flags {
		switch {
		case f == imap.FlagFlagged:
			labels = append(labels, core.LabelStarred)
		case strings.HasPrefix(string(f), "\\"):
			// other system flags carry no label meaning
		default:
			labels = append(labels, string(f))
		}
	}
	return labels
}

func parseUID(id string) (imap.UID, error) {
	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil || n == 0 {
		return 0, core.NewPermanentError("parse", id, fmt.Errorf("invalid IMAP UID %q", id))
	}
	return imap.UID(n), nil
}

func classify(op, id string, err error) error {
	var me *core.MailboxError
	if errors.As(err, &me) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return core.NewTransientError(op, id, err)
	}
	return core.NewPermanentError(op, id, err)
}
