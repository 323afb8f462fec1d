// Package processor drives the pipeline stages: moving report mail into
// the report folder, saving attachments into date buckets, extracting
// archives already on disk and parsing the payloads into an aggregate
// summary. Each stage returns its own stats value, nothing is accumulated
// in shared state.
package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/dmarcwatch/dmarcwatch/internal/classify"
	"github.com/dmarcwatch/dmarcwatch/internal/config"
	"github.com/dmarcwatch/dmarcwatch/internal/dkim"
	"github.com/dmarcwatch/dmarcwatch/internal/dns"
	"github.com/dmarcwatch/dmarcwatch/internal/extract"
	"github.com/dmarcwatch/dmarcwatch/internal/mailbox"

	goimap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/charmbracelet/log"
)

const dateBucketLayout = "2006-01-02"

// Options configures a Processor. Verifier and Resolver are optional,
// without them emails are listed without a DKIM verdict and source IPs
// stay unannotated.
type Options struct {
	Config   *config.Configuration
	Logger   *log.Logger
	Verifier *dkim.Verifier
	Resolver *dns.CachedDNSResolver
	Lister   extract.Lister
	DryRun   bool
	Limit    int
	Days     int
}

type Processor struct {
	config    *config.Configuration
	logger    *log.Logger
	extractor *extract.Extractor
	verifier  *dkim.Verifier
	resolver  *dns.CachedDNSResolver
	lister    extract.Lister
	dryRun    bool
	limit     int
	days      int
	now       func() time.Time
}

// New builds a Processor, rebuilding the extraction ledger from the
// output directory so repeated runs skip already extracted files.
func New(opts Options) (*Processor, error) {
	lister := opts.Lister
	if lister == nil {
		lister = extract.OSLister{}
	}

	ledger, err := extract.BuildLedger(opts.Config.OutputDir, lister)
	if err != nil {
		return nil, fmt.Errorf("could not build extraction ledger: %w", err)
	}

	return &Processor{
		config:    opts.Config,
		logger:    opts.Logger,
		extractor: extract.NewExtractor(opts.Config.OutputDir, ledger, opts.Logger),
		verifier:  opts.Verifier,
		resolver:  opts.Resolver,
		lister:    lister,
		dryRun:    opts.DryRun,
		limit:     opts.Limit,
		days:      opts.Days,
		now:       time.Now,
	}, nil
}

// MoveStats counts one MoveReports run.
type MoveStats struct {
	Checked int `json:"checked"`
	Matched int `json:"matched"`
	Moved   int `json:"moved"`
	Failed  int `json:"failed"`
}

// SaveStats counts one SaveAttachments run. Failed counts emails that
// could not be parsed at all, per-file extraction outcomes are in Extract.
type SaveStats struct {
	Emails          int           `json:"emails"`
	WithAttachments int           `json:"emails_with_attachments"`
	Attachments     int           `json:"attachments"`
	Failed          int           `json:"failed"`
	Extract         extract.Stats `json:"extract"`
}

// EmailSummary is one listed email with its DKIM verdict.
type EmailSummary struct {
	ID      string
	Subject string
	Sender  string
	Date    time.Time
	DKIM    dkim.Verdict
}

// MoveReports scans the source folder, classifies every message and moves
// the ones that look like aggregate reports into the report folder. In
// dry-run mode matches are only logged and counted.
func (p *Processor) MoveReports(ctx context.Context) (MoveStats, error) {
	var stats MoveStats

	c, err := p.connect()
	if err != nil {
		return stats, err
	}
	defer p.logout(c)

	if !p.dryRun {
		if err := mailbox.EnsureFolder(c, p.config.ReportFolder); err != nil {
			return stats, err
		}
	}

	err = p.forEachMessage(ctx, c, p.config.SourceFolder, func(msg *goimap.Message) {
		stats.Checked++

		email, err := mailbox.FromIMAP(msg)
		if err != nil {
			p.logger.Error("could not parse message", "uid", msg.Uid, "err", err)
			stats.Failed++
			return
		}

		decision := classify.Classify(classify.ExtractSignals(email))
		if !decision.IsReport {
			p.logger.Debug("not a report", "subject", email.Subject, "reason", decision.Reason)
			return
		}
		stats.Matched++
		p.logger.Info("found report email", "subject", email.Subject, "reason", decision.Reason)

		if p.dryRun {
			p.logger.Info("dry run, would move", "uid", msg.Uid, "folder", p.config.ReportFolder)
			stats.Moved++
			return
		}

		if err := mailbox.MoveMessage(c, msg.Uid, p.config.ReportFolder); err != nil {
			p.logger.Error("could not move message", "uid", msg.Uid, "err", err)
			stats.Failed++
			return
		}
		stats.Moved++
	})
	if err != nil {
		return stats, err
	}

	if !p.dryRun && stats.Moved > 0 {
		p.logger.Debug("running expunge")
		if err := c.Expunge(nil); err != nil {
			return stats, fmt.Errorf("could not expunge: %w", err)
		}
	}

	return stats, nil
}

// SaveAttachments reads the report folder and extracts every attachment
// into a date bucket named after the email's date. Emails without a
// usable date fall into the processing date's bucket.
func (p *Processor) SaveAttachments(ctx context.Context) (SaveStats, []extract.ExtractedFile, error) {
	var stats SaveStats
	var files []extract.ExtractedFile

	c, err := p.connect()
	if err != nil {
		return stats, nil, err
	}
	defer p.logout(c)

	err = p.forEachMessage(ctx, c, p.config.ReportFolder, func(msg *goimap.Message) {
		stats.Emails++

		email, err := mailbox.FromIMAP(msg)
		if err != nil {
			p.logger.Error("could not parse message", "uid", msg.Uid, "err", err)
			stats.Failed++
			return
		}
		if len(email.Attachments) == 0 {
			p.logger.Debug("no attachments", "subject", email.Subject)
			return
		}
		stats.WithAttachments++

		bucket := p.bucketFor(email)
		for _, att := range email.Attachments {
			stats.Attachments++
			extracted, s, err := p.extractor.Extract(att.Filename, att.Content, bucket)
			stats.Extract.Merge(s)
			files = append(files, extracted...)
			if err != nil {
				// already counted in the extraction stats
				p.logger.Error("could not extract attachment", "file", att.Filename, "subject", email.Subject, "err", err)
				continue
			}
			p.logger.Info("saved attachment", "file", att.Filename, "bucket", bucket, "extracted", s.Extracted, "skipped", s.Skipped)
		}
	})
	if err != nil {
		return stats, files, err
	}

	return stats, files, nil
}

// ListEmails returns a summary of the emails in the report folder,
// including a DKIM verdict when a verifier is configured.
func (p *Processor) ListEmails(ctx context.Context) ([]EmailSummary, error) {
	c, err := p.connect()
	if err != nil {
		return nil, err
	}
	defer p.logout(c)

	var summaries []EmailSummary
	err = p.forEachMessage(ctx, c, p.config.ReportFolder, func(msg *goimap.Message) {
		email, err := mailbox.FromIMAP(msg)
		if err != nil {
			p.logger.Error("could not parse message", "uid", msg.Uid, "err", err)
			return
		}

		summary := EmailSummary{
			ID:      email.ID,
			Subject: email.Subject,
			Sender:  email.Sender,
			Date:    email.Date,
		}
		if p.verifier != nil {
			summary.DKIM = p.verifier.Verify(email.Raw, email.Header("Dkim-Signature"))
		}
		summaries = append(summaries, summary)
	})
	if err != nil {
		return nil, err
	}

	return summaries, nil
}

func (p *Processor) bucketFor(email *mailbox.Email) string {
	date := email.Date
	if date.IsZero() {
		date = p.now()
	}
	return date.Format(dateBucketLayout)
}

// ListFolders returns the names of all folders on the server.
func (p *Processor) ListFolders(ctx context.Context) ([]string, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	c, err := p.connect()
	if err != nil {
		return nil, err
	}
	defer p.logout(c)

	return mailbox.ListFolders(c)
}

func (p *Processor) connect() (*client.Client, error) {
	c, err := mailbox.Connect(p.config.ImapConfig, p.logger.StandardLog())
	if err != nil {
		return nil, fmt.Errorf("could not connect to %s: %w", p.config.ImapConfig.Host, err)
	}
	p.logger.Debug("connected to imap server")

	if err := c.Login(p.config.ImapConfig.User, p.config.ImapConfig.Pass); err != nil {
		return nil, fmt.Errorf("could not login: %w", err)
	}
	p.logger.Debug("successful login")

	return c, nil
}

func (p *Processor) logout(c *client.Client) {
	if err := c.Logout(); err != nil {
		p.logger.Error("error on logout", "err", err)
	}
}

// forEachMessage fetches folder in batches and hands every message to fn.
// Per-message failures are fn's business, only search and fetch errors
// abort the walk.
func (p *Processor) forEachMessage(ctx context.Context, c *client.Client, folder string, fn func(msg *goimap.Message)) error {
	mbox, err := c.Select(folder, false)
	if err != nil {
		return fmt.Errorf("could not select folder %s: %w", folder, err)
	}
	p.logger.Info("opened folder", "folder", mbox.Name, "messages", mbox.Messages, "unseen", mbox.Unseen)

	ids, err := c.Search(mailbox.SearchCriteria(p.days))
	if err != nil {
		return fmt.Errorf("could not search for mails: %w", err)
	}
	if p.limit > 0 && len(ids) > p.limit {
		ids = ids[:p.limit]
	}
	p.logger.Debug("search finished", "hits", len(ids))

	if len(ids) == 0 {
		return nil
	}

	// fetch in batches, some servers drop the connection on huge fetches
	for start := 0; start < len(ids); start += p.config.BatchSize {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		end := start + p.config.BatchSize
		if end > len(ids) {
			end = len(ids)
		}
		seqset := new(goimap.SeqSet)
		seqset.AddNum(ids[start:end]...)
		p.logger.Debug("fetching batch", "messages", seqset.String())

		messages := make(chan *goimap.Message)
		done := make(chan error, 1)
		go func() {
			done <- c.Fetch(seqset, mailbox.FetchItems(), messages)
		}()

		for msg := range messages {
			fn(msg)
		}

		if err := <-done; err != nil {
			return fmt.Errorf("error on fetch: %w", err)
		}
	}

	return nil
}
