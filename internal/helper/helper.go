package helper

import (
	"bytes"
)

// ArchiveKind is the container format detected from leading magic bytes.
type ArchiveKind int

const (
	KindNone ArchiveKind = iota
	KindGzip
	KindZip
)

// https://en.wikipedia.org/wiki/List_of_file_signatures
var magicTable = []struct {
	magic []byte
	kind  ArchiveKind
}{
	{[]byte{31, 139}, KindGzip},     // .gz "\x1f\x8b"
	{[]byte{80, 75, 3, 4}, KindZip}, // .zip "\x50\x4B\x03\x04"
	{[]byte{80, 75, 5, 6}, KindZip}, // .zip "\x50\x4B\x05\x06"
	{[]byte{80, 75, 7, 8}, KindZip}, // .zip "\x50\x4B\x07\x08"
}

// DetectArchive sniffs the container format of content. KindNone means the
// payload is not a supported archive (usually plain XML).
func DetectArchive(content []byte) ArchiveKind {
	sliceEnd := 10
	if len(content) < sliceEnd {
		sliceEnd = len(content)
	}
	head := content[0:sliceEnd]

	for _, entry := range magicTable {
		if bytes.HasPrefix(head, entry.magic) {
			return entry.kind
		}
	}

	return KindNone
}

// IsSupportedArchive reports whether content starts with a known archive
// signature. Used to catch report payloads that are inlined into the mail
// body instead of being declared as attachments.
func IsSupportedArchive(content []byte) bool {
	return DetectArchive(content) != KindNone
}
