package transport

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
)

// resettableJar is a cookie jar that can be emptied while requests are in
// flight. http.Client reads its Jar field without synchronization, so the
// field is set once and the jar swaps its contents instead.
type resettableJar struct {
	mu    sync.RWMutex
	inner http.CookieJar
}

func newResettableJar() *resettableJar {
	return &resettableJar{inner: newCookieJar()}
}

func newCookieJar() http.CookieJar {
	// cookiejar.New only fails on a bad PublicSuffixList, and none is set.
	jar, _ := cookiejar.New(nil)
	return jar
}

// SetCookies implements http.CookieJar.
func (j *resettableJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	j.inner.SetCookies(u, cookies)
}

// Cookies implements http.CookieJar.
func (j *resettableJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.inner.Cookies(u)
}

func (j *resettableJar) reset() {
	j.mu.Lock()
	j.inner = newCookieJar()
	j.mu.Unlock()
}
