package processor

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/dmarcwatch/dmarcwatch/internal/aggregate"
	"github.com/dmarcwatch/dmarcwatch/internal/dmarc"
	"github.com/dmarcwatch/dmarcwatch/internal/extract"

	"github.com/gammazero/workerpool"
)

// ExtractStats counts one ExtractArchives run. Failed counts archives
// that could not even be read or listed, extraction outcomes are in
// Extract.
type ExtractStats struct {
	Archives int           `json:"archives"`
	Failed   int           `json:"failed"`
	Extract  extract.Stats `json:"extract"`
}

// ProcessStats counts one Process run over the on-disk report files.
type ProcessStats struct {
	Files  int `json:"files"`
	Parsed int `json:"parsed"`
	Failed int `json:"failed"`
}

// AnnotatedSource is one top source IP, with its PTR name when a resolver
// is configured and the lookup yields one.
type AnnotatedSource struct {
	aggregate.SourceCount
	Name string `json:"name,omitempty"`
}

// ExtractArchives walks the date buckets under the output directory and
// unpacks every archive file found there into its bucket. Useful when the
// tree was populated by an earlier run or copied in from elsewhere.
func (p *Processor) ExtractArchives(ctx context.Context) (ExtractStats, error) {
	var stats ExtractStats

	buckets, err := p.lister.ListBuckets(p.config.OutputDir)
	if err != nil {
		return stats, err
	}

	for _, bucket := range buckets {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		infos, err := p.lister.ListFiles(p.config.OutputDir, bucket)
		if err != nil {
			p.logger.Error("could not list bucket", "bucket", bucket, "err", err)
			stats.Failed++
			continue
		}

		for _, info := range infos {
			if !isArchiveName(info.Name) {
				continue
			}
			stats.Archives++

			path := filepath.Join(p.config.OutputDir, bucket, info.Name)
			content, err := os.ReadFile(path) // nolint: gosec
			if err != nil {
				p.logger.Error("could not read archive", "file", path, "err", err)
				stats.Failed++
				continue
			}

			_, s, err := p.extractor.Extract(info.Name, content, bucket)
			stats.Extract.Merge(s)
			if err != nil {
				// already counted in the extraction stats
				p.logger.Error("could not extract archive", "file", path, "err", err)
				continue
			}
			p.logger.Info("extracted archive", "file", path, "extracted", s.Extracted, "skipped", s.Skipped)
		}
	}

	return stats, nil
}

// Process parses every xml file under the output directory and folds the
// reports into an aggregate summary. Parsing runs on a worker pool, one
// file's failure never stops the batch.
func (p *Processor) Process(ctx context.Context) (ProcessStats, aggregate.Stats, error) {
	var stats ProcessStats

	buckets, err := p.lister.ListBuckets(p.config.OutputDir)
	if err != nil {
		return stats, aggregate.Stats{}, err
	}

	var paths []string
	for _, bucket := range buckets {
		infos, err := p.lister.ListFiles(p.config.OutputDir, bucket)
		if err != nil {
			p.logger.Error("could not list bucket", "bucket", bucket, "err", err)
			stats.Failed++
			continue
		}
		for _, info := range infos {
			if strings.EqualFold(filepath.Ext(info.Name), ".xml") {
				paths = append(paths, filepath.Join(p.config.OutputDir, bucket, info.Name))
			}
		}
	}
	stats.Files = len(paths)

	wp := workerpool.New(runtime.NumCPU())
	var mutex sync.Mutex
	var reports []*dmarc.Report

	for _, path := range paths {
		path := path
		wp.Submit(func() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			payload, err := os.ReadFile(path) // nolint: gosec
			if err != nil {
				p.logger.Error("could not read report", "file", path, "err", err)
				mutex.Lock()
				stats.Failed++
				mutex.Unlock()
				return
			}

			report, err := dmarc.Parse(payload)
			if err != nil {
				p.logger.Error("could not parse report", "file", path, "err", err)
				mutex.Lock()
				stats.Failed++
				mutex.Unlock()
				return
			}
			p.logger.Debug("parsed report", "file", path, "records", len(report.Records))

			mutex.Lock()
			stats.Parsed++
			reports = append(reports, report)
			mutex.Unlock()
		})
	}
	wp.StopWait()

	if err := ctx.Err(); err != nil {
		return stats, aggregate.Stats{}, err
	}

	return stats, aggregate.Aggregate(reports), nil
}

// AnnotateTopSources returns the n highest-volume source IPs with their
// reverse DNS names. Lookup failures leave the name empty, the annotation
// is display only.
func (p *Processor) AnnotateTopSources(stats aggregate.Stats, n int) []AnnotatedSource {
	top := stats.TopSources(n)
	annotated := make([]AnnotatedSource, 0, len(top))
	for _, source := range top {
		entry := AnnotatedSource{SourceCount: source}
		if p.resolver != nil {
			entry.Name = p.resolver.FirstName(source.IP)
		}
		annotated = append(annotated, entry)
	}
	return annotated
}

func isArchiveName(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".zip", ".gz":
		return true
	}
	return false
}
