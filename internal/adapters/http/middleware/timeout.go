package middleware

import (
	"context"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/jsamuelsen11/numbers-core/internal/adapters/http/dto"
)

const timeoutDetail = "request deadline exceeded; a purchase may still complete, " +
	"retry with the same Idempotency-Key to read its outcome"

// Timeout bounds each request by d. Handlers see the deadline on their
// context; if they have not finished when it passes, the client gets a 504
// problem response and whatever the handler writes afterwards is dropped.
//
// A purchase that already reserved credit keeps running past the deadline
// under its own timeout, which is why the 504 points the client back at
// its idempotency key.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			buf := &bufferedWriter{header: make(http.Header)}
			done := make(chan struct{})
			go func() {
				defer close(done)
				next.ServeHTTP(buf, r.WithContext(ctx))
			}()

			select {
			case <-done:
				buf.copyTo(w)
			case <-ctx.Done():
				buf.abandon()
				dto.WriteProblem(w, r, http.StatusGatewayTimeout, timeoutDetail)
			}
		})
	}
}

// bufferedWriter holds the handler's response until Timeout decides
// whether it or the 504 reaches the client.
type bufferedWriter struct {
	mu        sync.Mutex
	header    http.Header
	body      []byte
	status    int
	abandoned bool
}

// Header returns the handler-side header map. Handlers only touch it from
// their own goroutine before writing, so it needs no lock.
func (b *bufferedWriter) Header() http.Header {
	return b.header
}

func (b *bufferedWriter) WriteHeader(code int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == 0 {
		b.status = code
	}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.abandoned {
		return 0, http.ErrHandlerTimeout
	}
	if b.status == 0 {
		b.status = http.StatusOK
	}
	b.body = append(b.body, p...)
	return len(p), nil
}

// abandon makes later handler writes fail with http.ErrHandlerTimeout.
func (b *bufferedWriter) abandon() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.abandoned = true
}

func (b *bufferedWriter) copyTo(w http.ResponseWriter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	maps.Copy(w.Header(), b.header)
	status := b.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(b.body)
}
