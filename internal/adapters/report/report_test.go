package report

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func sampleReport() core.RunReport {
	start := time.Date(2024, 6, 2, 22, 0, 0, 0, time.UTC)
	return core.RunReport{
		RunID:      "run-1",
		StartedAt:  start,
		FinishedAt: start.Add(2500 * time.Millisecond),
		Counts: map[core.Action]int{
			core.ActionKeep:    2,
			core.ActionLabel:   0,
			core.ActionArchive: 3,
			core.ActionTrash:   1,
		},
		Examples: map[core.Action][]string{
			core.ActionKeep:    {"Dinner?", "Statement"},
			core.ActionArchive: {"Issue 42"},
			core.ActionTrash:   {"Claim your prize"},
		},
		Errors:    []string{"m9: fetch: not found"},
		Watermark: start.Add(-time.Hour),
	}
}

func TestRender(t *testing.T) {
	md, err := NewRenderer(core.ActionTrash).WithPreserveDays(7).Render(sampleReport())
	require.NoError(t, err)

	for _, want := range []string{
		"# Mail Triage Report – 2024-06-02",
		"Duration: 2.5s",
		"- keep: 2\n- label: 0\n- archive: 3\n- trash: 1\n- total: 6\n",
		"## Kept\n- Dinner?\n- Statement\n",
		"## Archived\n- Issue 42\n",
		"## Trashed (quarantine)\n- Claim your prize\n",
		"## Errors\n- m9: fetch: not found\n",
		"- dry_run: false\n- action: trash\n- preserve_days: 7\n- watermark: 2024-06-02T21:00:00Z",
	} {
		assert.Contains(t, md, want)
	}
	assert.NotContains(t, md, "## Labelled")
	assert.NotContains(t, md, "Dry run:")
}

func TestRenderDryRun(t *testing.T) {
	r := sampleReport()
	r.DryRun = true
	r.Errors = nil
	r.Watermark = time.Time{}

	md, err := NewRenderer(core.ActionLabel).Render(r)
	require.NoError(t, err)
	assert.Contains(t, md, "> Dry run: no changes were made to the mailbox.")
	assert.Contains(t, md, "- dry_run: true\n- action: label")
	assert.NotContains(t, md, "## Errors")
	assert.NotContains(t, md, "watermark")
	assert.NotContains(t, md, "preserve_days")
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "Mail triage 2024-06-02: 6 processed, 1 trashed, 1 errors", Subject(sampleReport()))
}

func TestFileSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	sink := NewFileSink(dir, NewRenderer(core.ActionTrash), nil)

	report := sampleReport()
	require.NoError(t, sink.Deliver(context.Background(), report))

	path := sink.Path(report)
	assert.Equal(t, filepath.Join(dir, "2024-06-02.md"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# Mail Triage Report"))
}

func TestLogSink(t *testing.T) {
	obsCore, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(obsCore))

	require.NoError(t, sink.Deliver(context.Background(), sampleReport()))
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, int64(1), fields["trashed"])
	assert.Equal(t, "run-1", fields["run_id"])
}

type testBackend struct {
	mu       sync.Mutex
	from     string
	to       []string
	messages []string
}

func (b *testBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &testSession{backend: b}, nil
}

type testSession struct {
	backend *testBackend
}

func (s *testSession) Reset() {}

func (s *testSession) Logout() error { return nil }

func (s *testSession) AuthPlain(_, _ string) error { return smtp.ErrAuthUnsupported }

func (s *testSession) Mail(from string, _ *smtp.MailOptions) error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.from = from
	return nil
}

func (s *testSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.to = append(s.backend.to, to)
	return nil
}

func (s *testSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.messages = append(s.backend.messages, string(data))
	return nil
}

func TestSMTPSink(t *testing.T) {
	backend := &testBackend{}
	srv := smtp.NewServer(backend)
	srv.Domain = "localhost"
	srv.AllowInsecureAuth = true

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(l)
	t.Cleanup(func() { srv.Close() })

	sink := NewSMTPSink(SMTPConfig{
		Addr: l.Addr().String(),
		From: "triage@example.com",
		To:   []string{"me@example.com"},
	}, NewRenderer(core.ActionTrash), nil)

	require.NoError(t, sink.Deliver(context.Background(), sampleReport()))

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, "triage@example.com", backend.from)
	assert.Equal(t, []string{"me@example.com"}, backend.to)
	require.Len(t, backend.messages, 1)
	msg := backend.messages[0]
	assert.Contains(t, msg, "Subject: Mail triage 2024-06-02: 6 processed")
	assert.Contains(t, msg, "text/markdown")
	assert.Contains(t, msg, "Mail Triage Report")
}

func TestSMTPSinkConnectionRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	sink := NewSMTPSink(SMTPConfig{Addr: addr, From: "a@example.com", To: []string{"b@example.com"}}, NewRenderer(core.ActionTrash), nil)
	assert.Error(t, sink.Deliver(context.Background(), sampleReport()))
}
