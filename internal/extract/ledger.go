package extract

import (
	"fmt"
	"os"
	"sync"
)

// FileInfo is the subset of directory metadata the ledger needs.
type FileInfo struct {
	Name string
	Size int64
}

// Lister enumerates the output tree. It is an explicit dependency so tests
// can substitute an in-memory listing for the filesystem.
type Lister interface {
	ListBuckets(baseDir string) ([]string, error)
	ListFiles(baseDir, bucket string) ([]FileInfo, error)
}

// OSLister lists date-bucket directories on the local filesystem.
type OSLister struct{}

func (OSLister) ListBuckets(baseDir string) ([]string, error) {
	entries, err := os.ReadDir(baseDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var buckets []string
	for _, entry := range entries {
		if entry.IsDir() {
			buckets = append(buckets, entry.Name())
		}
	}
	return buckets, nil
}

func (OSLister) ListFiles(baseDir, bucket string) ([]FileInfo, error) {
	entries, err := os.ReadDir(fmt.Sprintf("%s%c%s", baseDir, os.PathSeparator, bucket))
	if err != nil {
		return nil, err
	}
	var files []FileInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{Name: entry.Name(), Size: info.Size()})
	}
	return files, nil
}

// Ledger tracks which (dateBucket, filename, size) combinations already
// exist in the output tree. It is rebuilt from the tree at the start of
// every run and never persisted separately, so it cannot go stale.
type Ledger struct {
	mutex   sync.Mutex
	entries map[string]struct{}
}

// BuildLedger scans the output tree once, one listing per existing date
// bucket.
func BuildLedger(baseDir string, lister Lister) (*Ledger, error) {
	ledger := &Ledger{entries: make(map[string]struct{})}

	buckets, err := lister.ListBuckets(baseDir)
	if err != nil {
		return nil, fmt.Errorf("could not list output dir %s: %w", baseDir, err)
	}
	for _, bucket := range buckets {
		files, err := lister.ListFiles(baseDir, bucket)
		if err != nil {
			return nil, fmt.Errorf("could not list bucket %s: %w", bucket, err)
		}
		for _, f := range files {
			ledger.Add(bucket, f.Name, f.Size)
		}
	}

	return ledger, nil
}

// Contains reports whether the file was already extracted in a previous
// run. Size stands in for content identity, we never hash.
func (l *Ledger) Contains(bucket, filename string, size int64) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	_, ok := l.entries[ledgerKey(bucket, filename, size)]
	return ok
}

// Add marks a file as extracted.
func (l *Ledger) Add(bucket, filename string, size int64) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.entries[ledgerKey(bucket, filename, size)] = struct{}{}
}

// ContainsName reports whether any file with this name exists in the
// bucket, regardless of size.
func (l *Ledger) ContainsName(bucket, filename string) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	for key := range l.entries {
		if keyMatchesName(key, bucket, filename) {
			return true
		}
	}
	return false
}

func ledgerKey(bucket, filename string, size int64) string {
	return fmt.Sprintf("%s/%s/%d", bucket, filename, size)
}

func keyMatchesName(key, bucket, filename string) bool {
	prefix := fmt.Sprintf("%s/%s/", bucket, filename)
	return len(key) > len(prefix) && key[:len(prefix)] == prefix
}
