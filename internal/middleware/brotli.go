package middleware

import (
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

// BrotliConfig tunes response compression.
type BrotliConfig struct {
	Quality   int
	MinLength int
	// SkipPaths lists route prefixes that stream and must not be buffered.
	SkipPaths []string
	// SkipSuffixes does the same for parameterised routes such as
	// "/interviews/:id/monitor".
	SkipSuffixes []string
}

var DefaultBrotliConfig = BrotliConfig{
	Quality:   brotli.DefaultCompression,
	MinLength: 1024,
}

// compressWriter buffers the body until MinLength is reached, then switches
// to brotli. Short bodies go out uncompressed.
type compressWriter struct {
	gin.ResponseWriter
	pool      *sync.Pool
	enc       *brotli.Writer
	pending   []byte
	minLength int
	// plain is set once a flush sent buffered bytes uncompressed.
	plain bool
}

func (w *compressWriter) Write(data []byte) (int, error) {
	if w.enc != nil {
		return w.enc.Write(data)
	}
	if w.plain {
		return w.ResponseWriter.Write(data)
	}

	w.pending = append(w.pending, data...)
	if len(w.pending) < w.minLength {
		return len(data), nil
	}

	h := w.ResponseWriter.Header()
	h.Set("Content-Encoding", "br")
	h.Del("Content-Length")

	w.enc = w.pool.Get().(*brotli.Writer)
	w.enc.Reset(w.ResponseWriter)
	if _, err := w.enc.Write(w.pending); err != nil {
		return 0, err
	}
	w.pending = nil
	return len(data), nil
}

func (w *compressWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// Flush pushes buffered bytes to the client. A body still below MinLength
// is sent as is and the rest of the response stays uncompressed.
func (w *compressWriter) Flush() {
	switch {
	case w.enc != nil:
		_ = w.enc.Flush()
	case len(w.pending) > 0:
		_, _ = w.ResponseWriter.Write(w.pending)
		w.pending = nil
		w.plain = true
	}
	w.ResponseWriter.Flush()
}

// finish writes whatever is still buffered and releases the encoder.
func (w *compressWriter) finish() error {
	if w.enc == nil {
		if len(w.pending) == 0 {
			return nil
		}
		_, err := w.ResponseWriter.Write(w.pending)
		w.pending = nil
		return err
	}
	err := w.enc.Close()
	w.pool.Put(w.enc)
	w.enc = nil
	return err
}

// Brotli compresses responses with the default configuration.
func Brotli() gin.HandlerFunc {
	return BrotliWithConfig(DefaultBrotliConfig)
}

// BrotliWithConfig compresses responses for clients that accept br.
func BrotliWithConfig(cfg BrotliConfig) gin.HandlerFunc {
	if cfg.Quality < brotli.BestSpeed || cfg.Quality > brotli.BestCompression {
		cfg.Quality = brotli.DefaultCompression
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultBrotliConfig.MinLength
	}

	pool := &sync.Pool{New: func() any {
		return brotli.NewWriterLevel(nil, cfg.Quality)
	}}

	return func(c *gin.Context) {
		if isStreaming(c, cfg) || !acceptsBrotli(c.Request) {
			c.Next()
			return
		}

		c.Header("Vary", "Accept-Encoding")
		cw := &compressWriter{ResponseWriter: c.Writer, pool: pool, minLength: cfg.MinLength}
		c.Writer = cw
		defer func() {
			if err := cw.finish(); err != nil {
				_ = c.Error(err)
			}
		}()
		c.Next()
	}
}

// isStreaming reports requests whose responses must reach the client
// unbuffered: WebSocket upgrades, event streams and configured paths.
func isStreaming(c *gin.Context, cfg BrotliConfig) bool {
	if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		return true
	}
	if strings.Contains(c.GetHeader("Accept"), "text/event-stream") {
		return true
	}
	path := c.Request.URL.Path
	for _, prefix := range cfg.SkipPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	for _, suffix := range cfg.SkipSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

func acceptsBrotli(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		// "br;q=0.8" still counts, "br;q=0" opts out
		name, params, _ := strings.Cut(strings.TrimSpace(enc), ";")
		if !strings.EqualFold(strings.TrimSpace(name), "br") {
			continue
		}
		q := strings.ReplaceAll(params, " ", "")
		return q != "q=0" && q != "q=0.0" && q != "q=0.00" && q != "q=0.000"
	}
	return false
}
