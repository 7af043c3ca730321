// Package sink implements line-oriented output destinations for exported
// records.
package sink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/xxh3"
)

// Sink persists records as lines. It is owned by a single goroutine.
type Sink interface {
	// WriteLine appends line followed by the configured terminator.
	WriteLine(line string) error
	// Close flushes buffered data and releases the destination. Calling it
	// again returns the first result.
	Close() error
}

// Opener acquires a Sink. The writer stage calls it exactly once.
type Opener func(ctx context.Context) (Sink, error)

// Line terminators. Output never depends on the host platform.
const (
	LF   = "\n"
	CRLF = "\r\n"
)

// Compression selects an optional stream compressor.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
	// CompressionAuto picks gzip for *.gz, zstd for *.zst and none otherwise.
	CompressionAuto Compression = "auto"
)

// ParseCompression maps a configuration value to a Compression. The empty
// string means auto.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(strings.TrimSpace(s))); c {
	case "", CompressionAuto:
		return CompressionAuto, nil
	case CompressionNone, CompressionGzip, CompressionZstd:
		return c, nil
	default:
		return "", fmt.Errorf("unsupported compression %q", s)
	}
}

func (c Compression) resolve(path string) Compression {
	if c != CompressionAuto && c != "" {
		return c
	}
	switch p := strings.ToLower(path); {
	case strings.HasSuffix(p, ".gz"):
		return CompressionGzip
	case strings.HasSuffix(p, ".zst"):
		return CompressionZstd
	default:
		return CompressionNone
	}
}

// FileOptions configures a File sink.
type FileOptions struct {
	Path        string
	EOL         string // LF when empty
	Compression Compression
	BufferSize  int // bytes; 1 MiB when <= 0
}

// File is a buffered, optionally compressed file sink. It tracks the number
// of uncompressed bytes written and their xxh3 digest.
type File struct {
	f   *os.File
	bw  *bufio.Writer
	zw  io.WriteCloser // nil when uncompressed
	w   io.Writer      // head of the chain: zw or bw
	eol string

	digest *xxh3.Hasher
	bytes  int64

	closeOnce sync.Once
	closeErr  error
}

var _ Sink = (*File)(nil)

// OpenFile creates or truncates opt.Path and returns a File sink. Output is
// UTF-8 without a byte-order mark.
func OpenFile(opt FileOptions) (*File, error) {
	if strings.TrimSpace(opt.Path) == "" {
		return nil, errors.New("sink: output path must not be empty")
	}
	eol := opt.EOL
	if eol == "" {
		eol = LF
	}
	size := opt.BufferSize
	if size <= 0 {
		size = 1 << 20
	}

	f, err := os.OpenFile(opt.Path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opt.Path, err)
	}

	out := &File{
		f:      f,
		bw:     bufio.NewWriterSize(f, size),
		eol:    eol,
		digest: xxh3.New(),
	}
	out.w = out.bw

	switch opt.Compression.resolve(opt.Path) {
	case CompressionGzip:
		zw, err := gzip.NewWriterLevel(out.bw, gzip.DefaultCompression)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("gzip writer: %w", err)
		}
		out.zw, out.w = zw, zw
	case CompressionZstd:
		zw, err := zstd.NewWriter(out.bw)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		out.zw, out.w = zw, zw
	}
	return out, nil
}

// FileOpener returns an Opener for OpenFile. When opened is non-nil it
// receives the File so callers can read Bytes and Sum64 after the run.
func FileOpener(opt FileOptions, opened func(*File)) Opener {
	return func(ctx context.Context) (Sink, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := OpenFile(opt)
		if err != nil {
			return nil, err
		}
		if opened != nil {
			opened(f)
		}
		return f, nil
	}
}

// WriteLine writes line and the terminator.
func (s *File) WriteLine(line string) error {
	if _, err := io.WriteString(s.w, line); err != nil {
		return fmt.Errorf("write %s: %w", s.f.Name(), err)
	}
	if _, err := io.WriteString(s.w, s.eol); err != nil {
		return fmt.Errorf("write %s: %w", s.f.Name(), err)
	}
	_, _ = s.digest.WriteString(line)
	_, _ = s.digest.WriteString(s.eol)
	s.bytes += int64(len(line) + len(s.eol))
	return nil
}

// Close flushes the compressor, the buffer and the file, in that order.
func (s *File) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.zw != nil {
			if err := s.zw.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close compressor: %w", err))
			}
		}
		if err := s.bw.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", s.f.Name(), err))
		}
		if err := s.f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.f.Name(), err))
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// Bytes returns the number of uncompressed bytes written so far.
func (s *File) Bytes() int64 { return s.bytes }

// Sum64 returns the xxh3 digest of the uncompressed bytes written so far.
func (s *File) Sum64() uint64 { return s.digest.Sum64() }

// Path returns the file name.
func (s *File) Path() string { return s.f.Name() }
