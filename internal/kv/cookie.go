package kv

import (
	"bufio"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// CookieOptions control the cookies a CookieStore writes.
type CookieOptions struct {
	Prefix string        // prepended to every key, e.g. "lf_"
	MaxAge time.Duration // lifetime of written cookies
	Secure bool          // set in production (HTTPS only)
}

// CookieStore persists values as HttpOnly cookies on the response.
//
// Reads come from the request cookies, overlaid with whatever was written or
// removed earlier in the same request. Without the overlay a handler that
// stores a value and then reads it back (for example the access token right
// after sign-in) would still see the old request cookie.
//
// Set and Remove only record the change; any goroutine may call them. The
// Set-Cookie headers are added by the writer returned from NewCookieStore
// just before the response starts, or by Commit, both on the goroutine that
// owns the response. Changes made after that are lost, so long-lived
// connections (websockets) should copy the values into a MemoryStore.
type CookieStore struct {
	r    *http.Request
	opts CookieOptions

	mu      sync.Mutex
	overlay map[string]*string // nil value = removed
	dirty   []string           // changed keys, in first-change order
	sent    bool
}

// NewCookieStore binds a store to one request. Handlers must write the
// response through the returned writer.
func NewCookieStore(w http.ResponseWriter, r *http.Request, opts CookieOptions) (*CookieStore, http.ResponseWriter) {
	if opts.MaxAge <= 0 {
		opts.MaxAge = 30 * 24 * time.Hour
	}
	c := &CookieStore{
		r:       r,
		opts:    opts,
		overlay: make(map[string]*string),
	}
	return c, &cookieWriter{ResponseWriter: w, store: c}
}

func (c *CookieStore) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.overlay[key]; ok {
		if v == nil {
			return "", false
		}
		return *v, true
	}

	cookie, err := c.r.Cookie(c.opts.Prefix + key)
	if err != nil {
		return "", false
	}
	value, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return "", false
	}
	return value, true
}

func (c *CookieStore) Set(key, value string) {
	c.record(key, &value)
}

func (c *CookieStore) Remove(key string) {
	c.record(key, nil)
}

func (c *CookieStore) record(key string, value *string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, seen := c.overlay[key]; !seen {
		c.dirty = append(c.dirty, key)
	}
	c.overlay[key] = value
}

// Commit writes the pending cookies if the handler never wrote a response
// through the wrapped writer, for example when net/http sends the implicit
// 200. It is safe to call more than once.
func (c *CookieStore) Commit(w http.ResponseWriter) {
	c.commit(w.Header())
}

// commit adds the pending cookies to h unless the response has started.
func (c *CookieStore) commit(h http.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sent {
		return
	}
	c.sent = true

	for _, key := range c.dirty {
		cookie := &http.Cookie{
			Name:     c.opts.Prefix + key,
			Path:     "/",
			HttpOnly: true,
			Secure:   c.opts.Secure,
			SameSite: http.SameSiteLaxMode,
		}
		if v := c.overlay[key]; v != nil {
			cookie.Value = url.QueryEscape(*v)
			cookie.MaxAge = int(c.opts.MaxAge.Seconds())
		} else {
			cookie.MaxAge = -1
		}
		if s := cookie.String(); s != "" {
			h.Add("Set-Cookie", s)
		}
	}
}

// Snapshot copies every prefixed request cookie, with the overlay applied,
// into a MemoryStore.
func (c *CookieStore) Snapshot() *MemoryStore {
	c.mu.Lock()
	defer c.mu.Unlock()

	seed := make(map[string]string)
	prefix := c.opts.Prefix
	for _, cookie := range c.r.Cookies() {
		if len(cookie.Name) <= len(prefix) || cookie.Name[:len(prefix)] != prefix {
			continue
		}
		if v, err := url.QueryUnescape(cookie.Value); err == nil {
			seed[cookie.Name[len(prefix):]] = v
		}
	}
	for k, v := range c.overlay {
		if v == nil {
			delete(seed, k)
		} else {
			seed[k] = *v
		}
	}
	return NewMemoryStore(seed)
}

// cookieWriter flushes the store's cookies into the headers on the first
// WriteHeader or Write.
type cookieWriter struct {
	http.ResponseWriter
	store *CookieStore
}

func (w *cookieWriter) WriteHeader(code int) {
	w.store.commit(w.ResponseWriter.Header())
	w.ResponseWriter.WriteHeader(code)
}

func (w *cookieWriter) Write(b []byte) (int, error) {
	w.store.commit(w.ResponseWriter.Header())
	return w.ResponseWriter.Write(b)
}

func (w *cookieWriter) Flush() {
	w.store.commit(w.ResponseWriter.Header())
	_ = http.NewResponseController(w.ResponseWriter).Flush()
}

// Hijack hands the connection to a websocket upgrade. Pending cookies are
// dropped with the HTTP response.
func (w *cookieWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.store.markSent()
	return http.NewResponseController(w.ResponseWriter).Hijack()
}

func (w *cookieWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (c *CookieStore) markSent() {
	c.mu.Lock()
	c.sent = true
	c.mu.Unlock()
}
