// Package gmail implements core.Mailbox on top of the Gmail REST API
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	pageSize   = 500
	bodyFormat = "full"
)

var policyHeaders = map[string]struct{}{
	"List-Unsubscribe": {},
	"List-Id":          {},
	"Precedence":       {},
	"Auto-Submitted":   {},
}

// Mailbox is a Gmail implementation of core.Mailbox
type Mailbox struct {
	svc     *gmailapi.Service
	user    string
	query   string
	limiter *rate.Limiter
	text    *utils.TextProcessor
	logger  *zap.Logger

	labelsMu sync.Mutex
	byID     map[string]string
	byName   map[string]string
}

// New creates a Gmail mailbox from a credentials file. The file may hold
// a service account key or an authorized user token.
func New(ctx context.Context, credentialsFile, user, query string, requestsPerSecond float64, logger *zap.Logger) (*Mailbox, error) {
	svc, err := gmailapi.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(gmailapi.GmailModifyScope))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return NewWithService(svc, user, query, NewLimiter(requestsPerSecond), logger), nil
}

// NewLimiter returns a limiter for rps requests per second, or nil for no limit
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// NewWithService wraps an existing Gmail service
func NewWithService(svc *gmailapi.Service, user, query string, limiter *rate.Limiter, logger *zap.Logger) *Mailbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	if user == "" {
		user = "me"
	}
	return &Mailbox{
		svc:     svc,
		user:    user,
		query:   query,
		limiter: limiter,
		text:    utils.NewTextProcessor(logger),
		logger:  logger,
	}
}

func (m *Mailbox) wait(ctx context.Context) error {
	if m.limiter == nil {
		return nil
	}
	return m.limiter.Wait(ctx)
}

// ListCandidateIDs pages through every match, then returns the oldest
// limit messages
func (m *Mailbox) ListCandidateIDs(ctx context.Context, since time.Time, limit int) ([]string, error) {
	q := strings.TrimSpace(m.query)
	if !since.IsZero() {
		// after: is exclusive and second-granular
		q = strings.TrimSpace(fmt.Sprintf("%s after:%d", q, since.Unix()-1))
	}

	var ids []string
	pageToken := ""
	for {
		if err := m.wait(ctx); err != nil {
			return nil, err
		}
		call := m.svc.Users.Messages.List(m.user).Q(q).MaxResults(pageSize).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, classify("list", "", err)
		}
		for _, msg := range resp.Messages {
			ids = append(ids, msg.Id)
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	// Gmail returns newest first
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	m.logger.Debug("Listed Gmail messages", zap.String("query", q), zap.Int("count", len(ids)))
	return ids, nil
}

// Fetch returns the message summary with label names resolved
func (m *Mailbox) Fetch(ctx context.Context, id string) (core.MessageSummary, error) {
	if err := m.wait(ctx); err != nil {
		return core.MessageSummary{}, err
	}
	msg, err := m.svc.Users.Messages.Get(m.user, id).Format(bodyFormat).Context(ctx).Do()
	if err != nil {
		return core.MessageSummary{}, classify("fetch", id, err)
	}

	names, err := m.labelNames(ctx, msg.LabelIds)
	if err != nil {
		return core.MessageSummary{}, err
	}

	summary := core.MessageSummary{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
		Labels:   names,
		Date:     time.UnixMilli(msg.InternalDate),
		Headers:  make(map[string]string),
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch textproto.CanonicalMIMEHeaderKey(h.Name) {
			case "From":
				summary.From = h.Value
			case "To":
				summary.To = splitAddresses(h.Value)
			case "Cc":
				summary.Cc = splitAddresses(h.Value)
			case "Subject":
				summary.Subject = h.Value
			}
			key := textproto.CanonicalMIMEHeaderKey(h.Name)
			if _, ok := policyHeaders[key]; ok {
				summary.Headers[key] = h.Value
			}
		}
		summary.Body = m.text.SanitizeUTF8(plainText(msg.Payload))
	}
	return summary, nil
}

// Apply modifies labels and moves to trash
func (m *Mailbox) Apply(ctx context.Context, id string, mut core.Mutation) error {
	if len(mut.AddLabels) > 0 || len(mut.RemoveLabels) > 0 {
		add, err := m.labelIDs(ctx, mut.AddLabels, true)
		if err != nil {
			return err
		}
		remove, err := m.labelIDs(ctx, mut.RemoveLabels, false)
		if err != nil {
			return err
		}
		if len(add) > 0 || len(remove) > 0 {
			if err := m.wait(ctx); err != nil {
				return err
			}
			req := &gmailapi.ModifyMessageRequest{AddLabelIds: add, RemoveLabelIds: remove}
			if _, err := m.svc.Users.Messages.Modify(m.user, id, req).Context(ctx).Do(); err != nil {
				return classify("modify", id, err)
			}
		}
	}

	if mut.Trash {
		if err := m.wait(ctx); err != nil {
			return err
		}
		if _, err := m.svc.Users.Messages.Trash(m.user, id).Context(ctx).Do(); err != nil {
			return classify("trash", id, err)
		}
	}
	return nil
}

func (m *Mailbox) loadLabels(ctx context.Context) error {
	if m.byID != nil {
		return nil
	}
	if err := m.wait(ctx); err != nil {
		return err
	}
	resp, err := m.svc.Users.Labels.List(m.user).Context(ctx).Do()
	if err != nil {
		return classify("labels", "", err)
	}
	m.byID = make(map[string]string, len(resp.Labels))
	m.byName = make(map[string]string, len(resp.Labels))
	for _, l := range resp.Labels {
		m.byID[l.Id] = l.Name
		m.byName[strings.ToLower(l.Name)] = l.Id
	}
	return nil
}

func (m *Mailbox) labelNames(ctx context.Context, ids []string) ([]string, error) {
	m.labelsMu.Lock()
	defer m.labelsMu.Unlock()
	if err := m.loadLabels(ctx); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := m.byID[id]; ok {
			names = append(names, name)
		} else {
			names = append(names, id)
		}
	}
	return names, nil
}

// labelIDs maps names to IDs. Missing user labels are created when create
// is set and silently dropped otherwise.
func (m *Mailbox) labelIDs(ctx context.Context, names []string, create bool) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	m.labelsMu.Lock()
	defer m.labelsMu.Unlock()
	if err := m.loadLabels(ctx); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(names))
	for _, name := range names {
		if id, ok := m.byName[strings.ToLower(name)]; ok {
			ids = append(ids, id)
			continue
		}
		if !create {
			continue
		}
		if err := m.wait(ctx); err != nil {
			return nil, err
		}
		label, err := m.svc.Users.Labels.Create(m.user, &gmailapi.Label{
			Name:                  name,
			LabelListVisibility:   "labelShow",
			MessageListVisibility: "show",
		}).Context(ctx).Do()
		if err != nil {
			return nil, classify("create label", "", err)
		}
		m.logger.Info("Created Gmail label", zap.String("name", name), zap.String("id", label.Id))
		m.byID[label.Id] = label.Name
		m.byName[strings.ToLower(label.Name)] = label.Id
		ids = append(ids, label.Id)
	}
	return ids, nil
}

// plainText returns the first text/plain part, decoding base64url bodies
func plainText(part *gmailapi.MessagePart) string {
	if part == nil {
		return ""
	}
	if strings.HasPrefix(part.MimeType, "text/plain") && part.Body != nil && part.Body.Data != "" {
		return decodeBody(part.Body.Data)
	}
	for _, p := range part.Parts {
		if text := plainText(p); text != "" {
			return text
		}
	}
	return ""
}

func decodeBody(data string) string {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	return ""
}

func splitAddresses(v string) []string {
	var out []string
	for _, a := range strings.Split(v, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// classify maps API failures onto transient and permanent mailbox errors
func classify(op, id string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusNotFound:
			return core.NewPermanentError(op, id, fmt.Errorf("%w: %v", core.ErrMessageNotFound, err))
		case gerr.Code == http.StatusTooManyRequests, gerr.Code >= 500:
			return core.NewTransientError(op, id, err)
		case gerr.Code == http.StatusForbidden && rateLimited(gerr):
			return core.NewTransientError(op, id, err)
		}
		return core.NewPermanentError(op, id, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return core.NewTransientError(op, id, err)
	}
	return core.NewPermanentError(op, id, err)
}

func rateLimited(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded":
			return true
		}
	}
	return false
}
