// Package htmlrewrite provides buffered rewriting of HTTP response bodies.
// It hides the transport details from the processor: decompression, decoding
// to UTF-8 for processing, and re-encoding to the response's original
// character set on the way out.
package htmlrewrite

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/hashicorp/go-multierror"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// BufferRewrite reads and decodes the HTTP response body, applies a
// transformation to it using the provided processor function, and replaces
// the original body with the transformed version.
//
// The processor receives the fully buffered, unpacked (decompressed and
// UTF-8 decoded) body and returns a modified byte slice. The rewritten body
// is re-encoded to the charset declared in the original Content-Type header;
// a missing or unknown charset falls back to UTF-8.
//
// On error the response is left untouched, so the caller may serve it as if
// the function had not been called.
func BufferRewrite(res *http.Response, processor func(src []byte) []byte) error {
	rawBodyReader, charsetName, err := decodedBodyReader(res)
	if err != nil {
		return fmt.Errorf("get decoded body reader: %v", err)
	}

	rawBody, err := io.ReadAll(rawBodyReader)
	closeErr := rawBodyReader.Close()
	if err != nil {
		return fmt.Errorf("read body: %v", err)
	}
	if closeErr != nil {
		return fmt.Errorf("close body: %v", closeErr)
	}

	processedBody := processor(rawBody)

	encodedBody, ok := encodeBody(processedBody, charsetName)
	if !ok {
		// The declared charset cannot express the document; serve UTF-8 and
		// say so.
		setCharsetParam(res.Header, "utf-8")
	}

	res.Body = io.NopCloser(bytes.NewReader(encodedBody))
	res.ContentLength = int64(len(encodedBody))
	res.Header.Set("Content-Length", fmt.Sprint(len(encodedBody)))
	res.TransferEncoding = nil
	res.Header.Del("Content-Encoding")
	return nil
}

// decodedBodyReader extracts an uncompressed, UTF-8 decoded body from a
// potentially compressed and non-UTF-8 encoded HTTP response. It also
// reports the charset declared by the Content-Type header ("" if none).
func decodedBodyReader(res *http.Response) (io.ReadCloser, string, error) {
	body := res.Body
	if body == nil {
		body = http.NoBody
	}

	encoding := res.Header.Get("Content-Encoding")
	contentType := res.Header.Get("Content-Type")
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		params = nil
	}
	charsetName := strings.ToLower(params["charset"])

	decompressed, err := decompressedReader(body, encoding)
	if err != nil {
		return nil, "", fmt.Errorf("create decompressed reader for encoding %q: %v", encoding, err)
	}

	// A missing charset is treated as UTF-8, the modern web default, so no
	// conversion is needed.
	if charsetName == "" || charsetName == "utf-8" {
		if decompressed == body {
			return body, charsetName, nil
		}
		return struct {
			io.Reader
			io.Closer
		}{
			decompressed,
			&multiCloser{[]io.Closer{decompressed, body}},
		}, charsetName, nil
	}

	decoded, err := charset.NewReader(decompressed, contentType)
	if err != nil {
		decompressed.Close()
		return nil, "", fmt.Errorf("create decoded reader for content type %q: %v", contentType, err)
	}

	return struct {
		io.Reader
		io.Closer
	}{
		decoded,
		&multiCloser{[]io.Closer{decompressed, body}},
	}, charsetName, nil
}

// encodeBody converts a UTF-8 document back to the named charset. It reports
// false when the charset is unknown or the conversion fails, in which case
// the body is returned as UTF-8.
func encodeBody(body []byte, charsetName string) ([]byte, bool) {
	if charsetName == "" || charsetName == "utf-8" {
		return body, true
	}
	enc, err := htmlindex.Get(charsetName)
	if err != nil {
		return body, false
	}
	encoded, _, err := transform.Bytes(enc.NewEncoder(), body)
	if err != nil {
		return body, false
	}
	return encoded, true
}

func setCharsetParam(h http.Header, charsetName string) {
	mimeType, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		return
	}
	h.Set("Content-Type", fmt.Sprintf("%s; charset=%s", mimeType, charsetName))
}

// decompressedReader decompresses a reader using the specified compression
// algorithm. It does not decompress data encoded with multiple algorithms.
func decompressedReader(reader io.ReadCloser, compressionAlg string) (io.ReadCloser, error) {
	// Reference: https://developer.mozilla.org/en-US/docs/Web/HTTP/Headers/Content-Encoding
	switch strings.ToLower(compressionAlg) {
	case "gzip":
		gzipReader, err := gzip.NewReader(reader)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %v", err)
		}
		return gzipReader, nil
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return io.NopCloser(brotli.NewReader(reader)), nil
	case "zstd":
		zstdReader, err := zstd.NewReader(reader)
		if err != nil {
			return nil, fmt.Errorf("create zstd reader: %v", err)
		}
		return io.NopCloser(zstdReader.IOReadCloser()), nil
	case "":
		return reader, nil
	default:
		return nil, errors.New("unsupported encoding")
	}
}

// multiCloser wraps multiple io.Closers and ensures they are closed
// sequentially.
type multiCloser struct {
	closers []io.Closer
}

func (m *multiCloser) Close() error {
	var finalErr *multierror.Error
	for _, closer := range m.closers {
		if err := closer.Close(); err != nil {
			finalErr = multierror.Append(finalErr, err)
		}
	}
	return finalErr.ErrorOrNil()
}
