package normalize

import "time"

// File is the binary file handle exchanged with callers: a named blob
// with a MIME type and a modification timestamp. Input files are only
// read; output files are freshly allocated and owned by the caller.
type File struct {
	Name     string
	MIME     string
	Data     []byte
	Modified time.Time
}
