// Package source opens canvas exports and reads them as CSV records
package source

import (
	"bufio"
	"bytes"
	"io"
	"os"

	perr "rplace/internal/platform/errors"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression modes accepted by Open
const (
	CompressionAuto = "auto"
	CompressionNone = "none"
	CompressionGzip = "gzip"
	CompressionZstd = "zstd"
)

// Stdin is the path that selects standard input
const Stdin = "-"

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// stdin is swapped in tests
var stdin io.Reader = os.Stdin

// Input is an opened, decompressed export
type Input struct {
	io.Reader
	// Name is the path, or "stdin"
	Name string
	// Codec is the compression actually applied
	Codec string

	closers []func() error
}

// Close releases the decoder and then the file
func (in *Input) Close() error {
	var first error
	for i := len(in.closers) - 1; i >= 0; i-- {
		if err := in.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	in.closers = nil
	return first
}

// Open opens path ("-" for stdin) and wraps it in the decoder for compression.
// CompressionAuto sniffs gzip and zstd magic bytes and falls back to plain text
func Open(path, compression string) (*Input, error) {
	if compression == "" {
		compression = CompressionAuto
	}
	in := &Input{Name: path}
	var raw io.Reader
	if path == Stdin || path == "" {
		in.Name = "stdin"
		raw = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeInput, "open %s", path)
		}
		in.closers = append(in.closers, f.Close)
		raw = f
	}

	br := bufio.NewReaderSize(raw, 1<<20)
	codec := compression
	if codec == CompressionAuto {
		codec = sniff(br)
	}

	switch codec {
	case CompressionNone:
		in.Reader = br
	case CompressionGzip:
		gz, err := gzip.NewReader(br)
		if err != nil {
			_ = in.Close()
			return nil, perr.Wrapf(err, perr.ErrorCodeInput, "gzip header of %s", in.Name)
		}
		in.closers = append(in.closers, gz.Close)
		in.Reader = gz
	case CompressionZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			_ = in.Close()
			return nil, perr.Wrapf(err, perr.ErrorCodeInput, "zstd stream of %s", in.Name)
		}
		in.closers = append(in.closers, func() error { zr.Close(); return nil })
		in.Reader = zr
	default:
		_ = in.Close()
		return nil, perr.InvalidArgf("unknown compression %q", compression)
	}
	in.Codec = codec
	return in, nil
}

// sniff peeks at the first bytes without consuming them
func sniff(br *bufio.Reader) string {
	head, _ := br.Peek(len(zstdMagic))
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		return CompressionGzip
	case bytes.HasPrefix(head, zstdMagic):
		return CompressionZstd
	default:
		return CompressionNone
	}
}
