package factory

import (
	"context"
	"fmt"

	"github.com/mikey/llm-mail-triage/internal/adapters/gmail"
	"github.com/mikey/llm-mail-triage/internal/adapters/imap"
	"github.com/mikey/llm-mail-triage/internal/adapters/mailbox"
	"github.com/mikey/llm-mail-triage/internal/config"
	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/credential"
	"go.uber.org/zap"
)

// MailboxFactory creates mailbox adapters
type MailboxFactory struct {
	cfg     *config.Config
	logger  *zap.Logger
	secrets *credential.Store
}

// NewMailboxFactory creates a new mailbox factory
func NewMailboxFactory(cfg *config.Config, logger *zap.Logger, secrets *credential.Store) *MailboxFactory {
	return &MailboxFactory{
		cfg:     cfg,
		logger:  logger,
		secrets: secrets,
	}
}

// CreateMailbox creates the mailbox selected by mailbox.type
func (f *MailboxFactory) CreateMailbox(ctx context.Context) (core.Mailbox, error) {
	mailboxType := f.cfg.GetMailbox().Type

	switch mailboxType {
	case "gmail":
		gc := f.cfg.GetGmail()
		return gmail.New(ctx, gc.CredentialsFile, gc.User, gc.Query, gc.RequestsPerSecond, f.logger)
	case "imap":
		ic := f.cfg.GetIMAP()
		password, err := f.secrets.Resolve(ic.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve IMAP password: %w", err)
		}
		return imap.New(imap.Options{
			Host:          ic.Host,
			Port:          ic.Port,
			Username:      ic.Username,
			Password:      password,
			TLS:           ic.TLS,
			Mailbox:       ic.Mailbox,
			ArchiveFolder: ic.ArchiveFolder,
			TrashFolder:   ic.TrashFolder,
		}, f.logger), nil
	case "eml":
		return mailbox.LoadEMLDir(f.cfg.GetEML().Dir, f.logger)
	default:
		return nil, fmt.Errorf("unsupported mailbox type: %s", mailboxType)
	}
}
