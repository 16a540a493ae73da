// internal/network/compression.go
package network

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// AcceptEncoding is advertised on every fragment request.
const AcceptEncoding = "br, gzip, deflate"

// decoder wraps r for one Content-Encoding layer. release, when set, returns
// pooled state once the body is closed.
type decoder func(r io.Reader) (rc io.ReadCloser, release func(), err error)

var (
	gzipPool   sync.Pool
	brotliPool sync.Pool
)

var decoders = map[string]decoder{
	"gzip":    decodeGzip,
	"x-gzip":  decodeGzip,
	"br":      decodeBrotli,
	"deflate": decodeDeflate,
}

func decodeGzip(r io.Reader) (io.ReadCloser, func(), error) {
	zr, _ := gzipPool.Get().(*gzip.Reader)
	if zr == nil {
		var err error
		if zr, err = gzip.NewReader(r); err != nil {
			return nil, nil, fmt.Errorf("gzip: %w", err)
		}
	} else if err := zr.Reset(r); err != nil {
		gzipPool.Put(zr)
		return nil, nil, fmt.Errorf("gzip: %w", err)
	}
	return zr, func() { gzipPool.Put(zr) }, nil
}

func decodeBrotli(r io.Reader) (io.ReadCloser, func(), error) {
	br, _ := brotliPool.Get().(*brotli.Reader)
	if br == nil {
		br = brotli.NewReader(r)
	} else if err := br.Reset(r); err != nil {
		brotliPool.Put(br)
		return nil, nil, fmt.Errorf("brotli: %w", err)
	}
	return io.NopCloser(br), func() { brotliPool.Put(br) }, nil
}

// decodeDeflate accepts zlib-wrapped deflate and, for servers that send it,
// raw deflate. The zlib header is recognised by its checksum.
func decodeDeflate(r io.Reader) (io.ReadCloser, func(), error) {
	br := bufio.NewReader(r)
	if hdr, err := br.Peek(2); err == nil && hdr[0]&0x0f == 8 && (uint16(hdr[0])<<8|uint16(hdr[1]))%31 == 0 {
		zr, err := zlib.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("deflate: %w", err)
		}
		return zr, nil, nil
	}
	return flate.NewReader(br), nil, nil
}

// decodedBody closes every decoder layer and the original body.
type decodedBody struct {
	io.Reader
	closers  []io.Closer
	releases []func()
	once     sync.Once
}

func (b *decodedBody) Close() error {
	var errs []error
	b.once.Do(func() {
		for i := len(b.closers) - 1; i >= 0; i-- {
			errs = append(errs, b.closers[i].Close())
		}
		for _, release := range b.releases {
			release()
		}
	})
	return errors.Join(errs...)
}

// CompressionMiddleware advertises AcceptEncoding and decodes responses.
type CompressionMiddleware struct {
	Transport http.RoundTripper
}

// NewCompressionMiddleware wraps transport, or http.DefaultTransport if nil.
func NewCompressionMiddleware(transport http.RoundTripper) *CompressionMiddleware {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &CompressionMiddleware{Transport: transport}
}

// RoundTrip implements http.RoundTripper.
func (cm *CompressionMiddleware) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", AcceptEncoding)
	}
	resp, err := cm.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := DecompressResponse(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to decode %s response: %w", req.URL.Redacted(), err)
	}
	return resp, nil
}

// DecompressResponse replaces resp.Body with a reader that undoes every
// layer in Content-Encoding, outermost first, and drops the encoding and
// length headers. On error the body is closed.
func DecompressResponse(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	layers := contentEncodings(resp.Header)
	if len(layers) == 0 {
		return nil
	}

	body := &decodedBody{Reader: resp.Body, closers: []io.Closer{resp.Body}}
	for _, layer := range layers {
		if layer == "identity" {
			continue
		}
		decode, ok := decoders[layer]
		if !ok {
			_ = body.Close()
			return fmt.Errorf("unsupported Content-Encoding layer: %s", layer)
		}
		rc, release, err := decode(body.Reader)
		if err != nil {
			_ = body.Close()
			return err
		}
		body.Reader = rc
		body.closers = append(body.closers, rc)
		if release != nil {
			body.releases = append(body.releases, release)
		}
	}

	resp.Body = body
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// contentEncodings lists the layers in the order they must be removed, the
// reverse of the order the server applied them.
func contentEncodings(h http.Header) []string {
	var applied []string
	for _, v := range h.Values("Content-Encoding") {
		for _, part := range strings.Split(v, ",") {
			if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
				applied = append(applied, part)
			}
		}
	}
	out := make([]string, len(applied))
	for i, layer := range applied {
		out[len(applied)-1-i] = layer
	}
	return out
}
