// Package compress selects the stream compressor used for dumps and archives.
package compress

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Codec names.
const (
	Zstd = "zstd"
	Gzip = "gzip"
)

// Codec compresses and decompresses one stream format.
type Codec struct {
	name string
	ext  string
}

var codecs = []Codec{
	{name: Zstd, ext: "zst"},
	{name: Gzip, ext: "gz"},
}

// ByName returns the codec called name; "" selects zstd.
func ByName(name string) (Codec, error) {
	if name == "" {
		name = Zstd
	}
	for _, c := range codecs {
		if c.name == strings.ToLower(name) {
			return c, nil
		}
	}
	return Codec{}, fmt.Errorf("unknown compressor %q", name)
}

// ForPath returns the codec matching the extension of path.
func ForPath(path string) (Codec, bool) {
	for _, c := range codecs {
		if strings.HasSuffix(path, "."+c.ext) {
			return c, true
		}
	}
	return Codec{}, false
}

// Name returns the codec name.
func (c Codec) Name() string { return c.name }

// Extension returns the file extension without the dot.
func (c Codec) Extension() string { return c.ext }

// NewWriter returns a compressing writer over w. Closing it flushes the
// compressor but does not close w.
func (c Codec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	switch c.name {
	case Zstd:
		return zstd.NewWriter(w)
	case Gzip:
		return gzip.NewWriterLevel(w, gzip.DefaultCompression)
	}
	return nil, fmt.Errorf("codec not initialised")
}

// NewReader returns a decompressing reader over r.
func (c Codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	switch c.name {
	case Zstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	case Gzip:
		return gzip.NewReader(r)
	}
	return nil, fmt.Errorf("codec not initialised")
}

// Verify decompresses r completely and returns the decompressed size.
func (c Codec) Verify(r io.Reader) (int64, error) {
	dec, err := c.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("%s header: %w", c.name, err)
	}
	defer dec.Close()
	n, err := io.Copy(io.Discard, dec)
	if err != nil {
		return n, fmt.Errorf("%s stream: %w", c.name, err)
	}
	return n, nil
}
