// Package bodycodec decompresses a request body according to its
// Content-Encoding, sitting on top of httpcore.BodyConduit as an
// optional decorator (spec.md §1 names compression transforms an
// external collaborator's concern, not the core's).
//
// Grounded on fasthttp's fs.go reader-selection code (readFileHeader's
// br/zr switch on fileEncoding, and acquireBrotliReader/
// acquireGzipReader's pooling), generalised from "decompress a file
// once" to "decompress a body conduit's bytes, in either pull or push
// mode".
package bodycodec

import (
	"io"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

// Encoding identifies a Content-Encoding this package can undo.
type Encoding string

const (
	Identity Encoding = ""
	Gzip     Encoding = "gzip"
	Brotli   Encoding = "br"
)

// ParseEncoding maps a Content-Encoding header value to an Encoding.
// Unrecognised values (and "identity") come back as Identity, passing
// bytes through unchanged; chunked transfer coding is the core
// parser's concern, not this package's.
func ParseEncoding(headerValue string) Encoding {
	switch headerValue {
	case "gzip", "x-gzip":
		return Gzip
	case "br":
		return Brotli
	default:
		return Identity
	}
}

var gzipReaderPool sync.Pool

func acquireGzipReader(r io.Reader) (*gzip.Reader, error) {
	if v := gzipReaderPool.Get(); v != nil {
		zr := v.(*gzip.Reader)
		if err := zr.Reset(r); err != nil {
			gzipReaderPool.Put(zr)
			return nil, err
		}
		return zr, nil
	}
	return gzip.NewReader(r)
}

func releaseGzipReader(zr *gzip.Reader) {
	zr.Close()
	gzipReaderPool.Put(zr)
}

// NewDecodingReader wraps r, decompressing according to enc. r is
// typically a *httpcore.BodyConduit used through its io.Reader side
// (pull mode); NewDecodingReader has no dependency on httpcore itself
// since any io.Reader works. The returned reader does not pool its
// underlying gzip.Reader, unlike the push-mode path in listener.go,
// since a pull-mode caller owns the reader for an arbitrary lifetime.
func NewDecodingReader(enc Encoding, r io.Reader) (io.Reader, error) {
	switch enc {
	case Gzip:
		return gzip.NewReader(r)
	case Brotli:
		return brotli.NewReader(r), nil
	default:
		return r, nil
	}
}
