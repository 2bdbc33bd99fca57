package mailbox

import (
	"bytes"
	"fmt"
	"io"
	"net/textproto"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/utils"
	"go.uber.org/zap"
)

const snippetChars = 200

// policyHeaders are the only headers kept on a MessageSummary
var policyHeaders = []string{"List-Unsubscribe", "List-Id", "Precedence", "Auto-Submitted"}

// ParseMessage reads an RFC 5322 message. The text/plain part is preferred
// for the body; HTML is only used when no plain part exists. Attachments
// are skipped. An empty id falls back to the Message-Id header.
func ParseMessage(r io.Reader, id string) (core.MessageSummary, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return core.MessageSummary{}, fmt.Errorf("failed to parse message: %w", err)
	}
	defer mr.Close()

	h := mr.Header
	msg := core.MessageSummary{
		ID:      id,
		From:    firstAddress(h, "From"),
		To:      addresses(h, "To"),
		Cc:      addresses(h, "Cc"),
		Labels:  []string{core.LabelInbox},
		Headers: make(map[string]string),
	}
	if msg.ID == "" {
		if mid, err := h.MessageID(); err == nil {
			msg.ID = mid
		}
	}
	if subject, err := h.Subject(); err == nil {
		msg.Subject = subject
	} else {
		msg.Subject = h.Get("Subject")
	}
	if date, err := h.Date(); err == nil {
		msg.Date = date
	}
	for _, name := range policyHeaders {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			msg.Headers[textproto.CanonicalMIMEHeaderKey(name)] = v
		}
	}

	var textBody, htmlBody string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// keep whatever was read before the broken part
			break
		}
		ih, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := ih.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch {
		case strings.HasPrefix(contentType, "text/plain") && textBody == "":
			textBody = string(body)
		case strings.HasPrefix(contentType, "text/html") && htmlBody == "":
			htmlBody = string(body)
		}
	}

	msg.Body = textBody
	if msg.Body == "" && htmlBody != "" {
		msg.Body = stripTags(htmlBody)
	}
	msg.Snippet, _ = utils.NewTextProcessor(nil).TruncateChars(utils.CollapseWhitespace(msg.Body), snippetChars)

	return msg, nil
}

func firstAddress(h mail.Header, key string) string {
	list, err := h.AddressList(key)
	if err != nil || len(list) == 0 {
		return strings.TrimSpace(h.Get(key))
	}
	return list[0].String()
}

func addresses(h mail.Header, key string) []string {
	list, err := h.AddressList(key)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Address)
	}
	return out
}

// stripTags drops markup so HTML-only mail still yields readable text
func stripTags(html string) string {
	var sb strings.Builder
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			sb.WriteByte(' ')
		case !inTag:
			sb.WriteRune(r)
		}
	}
	return utils.CollapseWhitespace(sb.String())
}

// LoadEMLDir parses every *.eml file in dir into a memory mailbox. The file
// name without extension becomes the message ID, so decisions stay stable
// across runs. Files that fail to parse are logged and skipped.
func LoadEMLDir(dir string, logger *zap.Logger) (*MemoryMailbox, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.eml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("failed to open mail directory: %w", err)
	}
	sort.Strings(paths)

	mb := NewMemoryMailbox(logger)
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("Failed to read message file", zap.String("path", path), zap.Error(err))
			continue
		}
		id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		msg, err := ParseMessage(bytes.NewReader(raw), id)
		if err != nil {
			logger.Warn("Failed to parse message file", zap.String("path", path), zap.Error(err))
			continue
		}
		if msg.Date.IsZero() {
			if info, err := os.Stat(path); err == nil {
				msg.Date = info.ModTime()
			}
		}
		mb.Seed(msg)
	}

	logger.Info("Loaded messages from directory",
		zap.String("dir", dir),
		zap.Int("count", len(paths)))
	return mb, nil
}
