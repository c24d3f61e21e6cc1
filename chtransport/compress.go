package chtransport

import (
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// CompressionCodec selects the stream filter used for
// compress_client_request / compress_server_response, per spec.md §6.
type CompressionCodec int

const (
	CompressionNone CompressionCodec = iota
	CompressionGzip
	CompressionZstd
)

func (c CompressionCodec) contentEncoding() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	default:
		return ""
	}
}

// NewCompressWriter wraps w so writes are compressed with the given codec.
// The caller must Close the returned writer to flush the trailer, but must
// not close the underlying w itself (the request body owns that).
func NewCompressWriter(w io.Writer, codec CompressionCodec) (io.WriteCloser, error) {
	switch codec {
	case CompressionGzip:
		return gzip.NewWriter(w), nil
	case CompressionZstd:
		return zstd.NewWriter(w)
	default:
		return nopWriteCloser{w}, nil
	}
}

// NewDecompressReader wraps r so reads are decompressed per codec.
func NewDecompressReader(r io.Reader, codec CompressionCodec) (io.ReadCloser, error) {
	switch codec {
	case CompressionGzip:
		return gzip.NewReader(r)
	case CompressionZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zstdReadCloser{dec}, nil
	default:
		return io.NopCloser(r), nil
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type zstdReadCloser struct{ *zstd.Decoder }

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}
