package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/dmarcwatch/dmarcwatch/internal/aggregate"
	"github.com/dmarcwatch/dmarcwatch/internal/config"
	"github.com/dmarcwatch/dmarcwatch/internal/dkim"
	"github.com/dmarcwatch/dmarcwatch/internal/dns"
	"github.com/dmarcwatch/dmarcwatch/internal/processor"

	// needed to handle other charsets too
	_ "github.com/emersion/go-message/charset"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
)

func main() {
	debug := flag.Bool("debug", false, "Print debug output")
	configFile := flag.String("config", "", "Config File to use")
	move := flag.Bool("move", false, "scan the source folder and move report emails to the report folder")
	save := flag.Bool("save", false, "save attachments from the report folder into date buckets")
	process := flag.Bool("process", false, "extract and parse the saved report files and print a summary")
	list := flag.Bool("list", false, "list emails in the report folder with their DKIM verdict")
	folders := flag.Bool("folders", false, "list all folders on the server")
	dryRun := flag.Bool("dry-run", false, "only show what would be moved")
	days := flag.Int("days", 0, "only look at emails of the last n days (0 = all)")
	limit := flag.Int("limit", 0, "limit the number of emails per run (0 = all)")
	jsonOut := flag.Bool("json", false, "print the summary as json")
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		logger.SetFormatter(log.LogfmtFormatter)
	}
	if *debug {
		logger.SetLevel(log.DebugLevel)
	}

	if *configFile == "" {
		logger.Error("please supply a config file")
		return
	}

	// set some defaults
	defaults := config.Configuration{
		SourceFolder: "INBOX",
		ReportFolder: "dmarc-report",
		OutputDir:    "dmarc-report",
		BatchSize:    30,
		DnsConnectTimeout: config.Duration{
			Duration: 1 * time.Second,
		},
		DnsTimeout: config.Duration{
			Duration: 10 * time.Second,
		},
		DnsCacheTimeout: config.Duration{
			Duration: 1 * time.Hour,
		},
	}

	settings, err := config.GetConfig(defaults, *configFile)
	if err != nil {
		logger.Error("could not read config", "file", *configFile, "err", err)
		return
	}

	// trap Ctrl+C and call cancel on the context
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	defer func() {
		signal.Stop(c)
		cancel()
	}()

	go func() {
		<-c
		logger.Info("CTRL+C received")
		cancel()
	}()

	opts := runOptions{
		move:    *move,
		save:    *save,
		process: *process,
		list:    *list,
		folders: *folders,
		dryRun:  *dryRun,
		days:    *days,
		limit:   *limit,
		jsonOut: *jsonOut,
	}
	if err := run(ctx, settings, logger, opts); err != nil {
		logger.Error("run failed", "err", err)
		os.Exit(1)
	}
}

type runOptions struct {
	move    bool
	save    bool
	process bool
	list    bool
	folders bool
	dryRun  bool
	days    int
	limit   int
	jsonOut bool
}

func run(ctx context.Context, settings *config.Configuration, logger *log.Logger, opts runOptions) error {
	resolver := dns.NewCachedDNSResolver(ctx, settings.DnsServer, settings.DnsConnectTimeout.Duration, settings.DnsTimeout.Duration, settings.DnsCacheTimeout.Duration, logger)

	proc, err := processor.New(processor.Options{
		Config: settings,
		Logger: logger,
		// signature metadata only, the cryptographic check needs a
		// resolver-backed verifier plugged in here
		Verifier: dkim.NewVerifier(nil),
		Resolver: resolver,
		DryRun:   opts.dryRun,
		Limit:    opts.limit,
		Days:     opts.days,
	})
	if err != nil {
		return err
	}

	switch {
	case opts.move:
		stats, err := proc.MoveReports(ctx)
		if err != nil {
			return err
		}
		logger.Info("move finished", "checked", stats.Checked, "matched", stats.Matched, "moved", stats.Moved, "failed", stats.Failed)
	case opts.save:
		stats, _, err := proc.SaveAttachments(ctx)
		if err != nil {
			return err
		}
		logger.Info("save finished",
			"emails", stats.Emails,
			"with_attachments", stats.WithAttachments,
			"attachments", stats.Attachments,
			"extracted", stats.Extract.Extracted,
			"skipped", stats.Extract.Skipped,
			"failed", stats.Failed+stats.Extract.Failed,
		)
	case opts.process:
		extractStats, err := proc.ExtractArchives(ctx)
		if err != nil {
			return err
		}
		logger.Info("extraction finished", "archives", extractStats.Archives, "extracted", extractStats.Extract.Extracted, "skipped", extractStats.Extract.Skipped, "failed", extractStats.Failed+extractStats.Extract.Failed)

		processStats, agg, err := proc.Process(ctx)
		if err != nil {
			return err
		}
		logger.Info("parsing finished", "files", processStats.Files, "parsed", processStats.Parsed, "failed", processStats.Failed)

		if opts.jsonOut {
			return printSummaryJSON(agg, proc)
		}
		printSummary(agg, proc)
	case opts.folders:
		names, err := proc.ListFolders(ctx)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
	case opts.list:
		fallthrough
	default:
		// -list and the no-flag default both show the report folder with
		// DKIM verdicts
		summaries, err := proc.ListEmails(ctx)
		if err != nil {
			return err
		}
		printEmailList(summaries)
	}

	return nil
}

func printEmailList(summaries []processor.EmailSummary) {
	fmt.Printf("%d email(s)\n", len(summaries))
	for _, s := range summaries {
		date := "unknown date"
		if !s.Date.IsZero() {
			date = s.Date.Format("2006-01-02 15:04")
		}
		fmt.Printf("\n[%s] %s\n", s.ID, s.Subject)
		fmt.Printf("  From: %s\n  Date: %s\n", s.Sender, date)
		status := "not verified"
		if s.DKIM.Verified {
			status = "verified"
		}
		fmt.Printf("  DKIM: %s (%s)\n", status, s.DKIM.Message)
		if s.DKIM.Domain != "" {
			fmt.Printf("    Domain: %s\n    Selector: %s\n    Algorithm: %s\n", s.DKIM.Domain, s.DKIM.Selector, s.DKIM.Algorithm)
			if s.DKIM.Signature != "" {
				fmt.Printf("    Signature: %s\n", s.DKIM.Signature)
			}
		}
	}
}

func printSummary(stats aggregate.Stats, proc *processor.Processor) {
	fmt.Printf("\nAggregate Summary\n")
	fmt.Printf("=================\n")
	fmt.Printf("Reports:  %d\n", stats.Reports)
	fmt.Printf("Records:  %d\n", stats.Overall.Records)
	fmt.Printf("Messages: %d\n", stats.Overall.Messages)
	fmt.Printf("\nSPF:   %d pass / %d fail\n", stats.Overall.SPFPass, stats.Overall.SPFFail)
	fmt.Printf("DKIM:  %d pass / %d fail\n", stats.Overall.DKIMPass, stats.Overall.DKIMFail)
	fmt.Printf("DMARC: %d pass / %d fail\n", stats.Overall.DMARCPass, stats.Overall.DMARCFail)

	if len(stats.Overall.Dispositions) > 0 {
		fmt.Printf("\nDispositions:\n")
		for disposition, count := range stats.Overall.Dispositions {
			fmt.Printf("  %-10s %d\n", disposition, count)
		}
	}

	if len(stats.Domains) > 0 {
		fmt.Printf("\nPer domain:\n")
		for domain, totals := range stats.Domains {
			fmt.Printf("  %-40s %d messages, dmarc %d pass / %d fail\n", domain, totals.Messages, totals.DMARCPass, totals.DMARCFail)
		}
	}

	top := proc.AnnotateTopSources(stats, 10)
	if len(top) > 0 {
		fmt.Printf("\nTop sources:\n")
		for _, source := range top {
			name := source.Name
			if name == "" {
				name = "-"
			}
			fmt.Printf("  %-40s %8d  %s\n", source.IP, source.Messages, name)
		}
	}
}

func printSummaryJSON(stats aggregate.Stats, proc *processor.Processor) error {
	out := struct {
		aggregate.Stats
		TopSources []processor.AnnotatedSource `json:"top_sources"`
	}{
		Stats:      stats,
		TopSources: proc.AnnotateTopSources(stats, 10),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
