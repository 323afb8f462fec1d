package extract

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmarcwatch/dmarcwatch/internal/helper"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-multierror"
)

const (
	// maxDepth bounds how deep nested containers are followed. Real
	// reports are at most an xml inside a gz inside a zip.
	maxDepth = 5
	// maxEntrySize caps one decompressed entry, a guard against zip
	// bombs.
	maxEntrySize = 64 << 20
)

var (
	ErrDepthExceeded = errors.New("archive nesting depth exceeded")
	ErrTooLarge      = errors.New("decompressed entry too large")
)

// ExtractedFile is one payload written to storage.
type ExtractedFile struct {
	Path       string
	DateBucket string
	Filename   string
	Size       int64
}

// Stats counts the outcome of one extraction call. Values are returned,
// never accumulated in shared state, so callers fold them explicitly. A
// failing Extract call is already reflected in Failed, callers must not
// count its error again.
type Stats struct {
	Extracted int
	Skipped   int
	Failed    int
}

// Merge folds other into s.
func (s *Stats) Merge(other Stats) {
	s.Extracted += other.Extracted
	s.Skipped += other.Skipped
	s.Failed += other.Failed
}

// Extractor recursively unpacks report payloads into date-bucket
// directories, consulting a ledger so repeated runs are idempotent.
type Extractor struct {
	baseDir string
	ledger  *Ledger
	logger  *log.Logger
	// now is stubbed in tests for the size-mismatch rename suffix
	now func() time.Time
}

func NewExtractor(baseDir string, ledger *Ledger, logger *log.Logger) *Extractor {
	return &Extractor{
		baseDir: baseDir,
		ledger:  ledger,
		logger:  logger,
		now:     time.Now,
	}
}

// Extract unpacks one attachment payload into the bucket directory. Nested
// containers are followed up to maxDepth; exceeding the depth or hitting a
// corrupt container fails this payload only, sibling files already written
// stay in place. A plain payload (no archive magic) is written as-is.
func (e *Extractor) Extract(filename string, content []byte, bucket string) ([]ExtractedFile, Stats, error) {
	var files []ExtractedFile
	var stats Stats

	if err := os.MkdirAll(filepath.Join(e.baseDir, bucket), 0o750); err != nil {
		// not creatable destinations are fatal for the run, retrying
		// cannot change the outcome
		return nil, stats, fmt.Errorf("could not create bucket dir: %w", err)
	}

	if err := e.extract(filename, content, bucket, 0, &files, &stats); err != nil {
		// zip entry failures are already counted one by one, anything
		// else failed the payload as a whole
		if stats.Failed == 0 {
			stats.Failed++
		}
		return files, stats, err
	}
	return files, stats, nil
}

func (e *Extractor) extract(filename string, content []byte, bucket string, depth int, files *[]ExtractedFile, stats *Stats) error {
	if depth > maxDepth {
		return fmt.Errorf("%w for %s", ErrDepthExceeded, filename)
	}
	if int64(len(content)) > maxEntrySize {
		return fmt.Errorf("%w: %s has %d bytes", ErrTooLarge, filename, len(content))
	}

	switch helper.DetectArchive(content) {
	case helper.KindGzip:
		inner, err := readGZ(content)
		if err != nil {
			return err
		}
		return e.extract(gzInnerName(filename), inner, bucket, depth+1, files, stats)
	case helper.KindZip:
		return e.extractZip(content, bucket, depth, files, stats)
	default:
		return e.writeFile(filename, content, bucket, files, stats)
	}
}

func (e *Extractor) extractZip(content []byte, bucket string, depth int, files *[]ExtractedFile, stats *Stats) error {
	r, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return fmt.Errorf("could not open zip: %w", err)
	}

	var result *multierror.Error
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		entry, err := readZipEntry(f)
		if err != nil {
			stats.Failed++
			result = multierror.Append(result, err)
			continue
		}
		// entries keep only their base name, zips with an internal
		// directory layout must not recreate it in the bucket
		if err := e.extract(filepath.Base(f.Name), entry, bucket, depth+1, files, stats); err != nil {
			stats.Failed++
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (e *Extractor) writeFile(filename string, content []byte, bucket string, files *[]ExtractedFile, stats *Stats) error {
	clean := SanitizeFilename(filename)
	size := int64(len(content))

	if e.ledger.Contains(bucket, clean, size) {
		e.logger.Debug("skipping already extracted file", "bucket", bucket, "file", clean)
		stats.Skipped++
		return nil
	}

	// same name but different size: keep both, suffix the new one
	if e.ledger.ContainsName(bucket, clean) {
		ext := filepath.Ext(clean)
		clean = fmt.Sprintf("%s_%s%s", strings.TrimSuffix(clean, ext), e.now().Format("150405"), ext)
	}

	path := filepath.Join(e.baseDir, bucket, clean)
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640) // nolint: gosec
	if err != nil {
		if os.IsExist(err) {
			// another writer claimed the path first, same as a ledger hit
			stats.Skipped++
			return nil
		}
		return fmt.Errorf("could not create %s: %w", path, err)
	}
	defer out.Close()

	if _, err := out.Write(content); err != nil {
		return fmt.Errorf("could not write %s: %w", path, err)
	}

	e.ledger.Add(bucket, clean, size)
	stats.Extracted++
	*files = append(*files, ExtractedFile{
		Path:       path,
		DateBucket: bucket,
		Filename:   clean,
		Size:       size,
	})
	return nil
}

func readGZ(content []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("could not gzip read: %w", err)
	}
	defer gz.Close()

	inner, err := io.ReadAll(io.LimitReader(gz, maxEntrySize+1))
	if err != nil {
		return nil, fmt.Errorf("could not read: %w", err)
	}
	if len(inner) > maxEntrySize {
		return nil, ErrTooLarge
	}
	return inner, nil
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("could not open file %s inside zip: %w", f.Name, err)
	}
	defer rc.Close()

	content, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return nil, fmt.Errorf("could not read file %s inside zip: %w", f.Name, err)
	}
	if len(content) > maxEntrySize {
		return nil, fmt.Errorf("%w: zip entry %s", ErrTooLarge, f.Name)
	}
	return content, nil
}

// gzInnerName derives the decompressed filename: report.xml.gz becomes
// report.xml, report.gz becomes report.xml.
func gzInnerName(filename string) string {
	inner := strings.TrimSuffix(filename, ".gz")
	if strings.EqualFold(filepath.Ext(inner), ".xml") {
		return inner
	}
	return inner + ".xml"
}
