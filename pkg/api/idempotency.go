package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"sync"
	"time"
)

// IdempotencyKeyHeader lets a client retry a mutating call safely.
const IdempotencyKeyHeader = "Idempotency-Key"

// fingerprintLimit bounds how much of a request body is hashed. Larger
// bodies (document uploads) are replayed by key alone.
const fingerprintLimit = 1 << 20

// cachedResponse is a 2xx response kept for replay, with the fingerprint of
// the request that produced it.
type cachedResponse struct {
	Fingerprint string
	StatusCode  int
	Headers     http.Header
	Body        []byte
	CachedAt    time.Time
}

// IdempotencyStorer defines the interface for idempotency backends.
type IdempotencyStorer interface {
	Check(key string) (*cachedResponse, bool)
	Set(key string, resp *cachedResponse)
}

// MemoryIdempotencyStore holds cached responses keyed by idempotency key.
type MemoryIdempotencyStore struct {
	mu      sync.RWMutex
	entries map[string]*cachedResponse
	ttl     time.Duration
	clock   func() time.Time
}

// NewIdempotencyStore creates an in-memory store. Expired entries are
// dropped on the next Set.
func NewIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		entries: make(map[string]*cachedResponse),
		ttl:     ttl,
		clock:   time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (s *MemoryIdempotencyStore) WithClock(clock func() time.Time) *MemoryIdempotencyStore {
	s.clock = clock
	return s
}

func (s *MemoryIdempotencyStore) Check(key string) (*cachedResponse, bool) {
	s.mu.RLock()
	cached, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok || s.clock().Sub(cached.CachedAt) >= s.ttl {
		return nil, false
	}
	return cached, true
}

func (s *MemoryIdempotencyStore) Set(key string, resp *cachedResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	for k, v := range s.entries {
		if now.Sub(v.CachedAt) >= s.ttl {
			delete(s.entries, k)
		}
	}
	resp.CachedAt = now
	s.entries[key] = resp
}

type responseCapture struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (rc *responseCapture) WriteHeader(code int) {
	rc.statusCode = code
	rc.ResponseWriter.WriteHeader(code)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	rc.body.Write(b)
	return rc.ResponseWriter.Write(b)
}

// fingerprint hashes the head of the request body and puts the bytes back.
// It returns "" when the body is larger than fingerprintLimit.
func fingerprint(r *http.Request) (string, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return sum(nil), nil
	}
	head, err := io.ReadAll(io.LimitReader(r.Body, fingerprintLimit+1))
	if err != nil {
		return "", err
	}
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), r.Body), r.Body}
	if len(head) > fingerprintLimit {
		return "", nil
	}
	return sum(head), nil
}

func sum(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// IdempotencyMiddleware processes a mutating request carrying an
// Idempotency-Key once; retries get the cached 2xx response. Keys are
// scoped by method and path, and reusing a key with a different body is
// rejected with 422.
func IdempotencyMiddleware(store IdempotencyStorer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			key = r.Method + " " + r.URL.Path + " " + key

			fp, err := fingerprint(r)
			if err != nil {
				WriteBadRequest(w, "unreadable request body")
				return
			}

			if cached, ok := store.Check(key); ok {
				if fp != "" && cached.Fingerprint != "" && fp != cached.Fingerprint {
					WriteErrorR(w, r, http.StatusUnprocessableEntity, "Idempotency Key Reused",
						"Idempotency-Key was already used with a different request body")
					return
				}
				for k, vals := range cached.Headers {
					for _, v := range vals {
						w.Header().Set(k, v)
					}
				}
				w.Header().Set("Idempotent-Replay", "true")
				w.WriteHeader(cached.StatusCode)
				_, _ = w.Write(cached.Body)
				return
			}

			capture := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(capture, r)

			if capture.statusCode >= 200 && capture.statusCode < 300 {
				store.Set(key, &cachedResponse{
					Fingerprint: fp,
					StatusCode:  capture.statusCode,
					Headers:     w.Header().Clone(),
					Body:        capture.body.Bytes(),
				})
			}
		})
	}
}
