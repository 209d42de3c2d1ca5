package proxy

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

type stubRewriter struct {
	calls int
	fail  bool
}

func (s *stubRewriter) Inject(req *http.Request, res *http.Response) error {
	s.calls++
	if s.fail {
		return errors.New("rewrite failed")
	}
	res.Header.Set("X-Rewritten", "1")
	return nil
}

type stubCertGenerator struct{}

func (stubCertGenerator) GetCertificate(host string) (*tls.Certificate, error) {
	return nil, errors.New("not implemented")
}

func newTestProxy(t *testing.T, rw rewriter) *Proxy {
	t.Helper()
	p, err := NewProxy(rw, stubCertGenerator{}, "127.0.0.1", 0)
	if err != nil {
		t.Fatalf("NewProxy: %v", err)
	}
	return p
}

func proxyClient(t *testing.T, port int) *http.Client {
	t.Helper()
	proxyURL, err := url.Parse(fmt.Sprintf("http://127.0.0.1:%d", port))
	if err != nil {
		t.Fatalf("parsing proxy url: %v", err)
	}
	return &http.Client{Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)}}
}

func TestNewProxyRejectsNil(t *testing.T) {
	t.Parallel()

	if _, err := NewProxy(nil, stubCertGenerator{}, "127.0.0.1", 0); err == nil {
		t.Error("NewProxy accepted a nil rewriter")
	}
	if _, err := NewProxy(&stubRewriter{}, nil, "127.0.0.1", 0); err == nil {
		t.Error("NewProxy accepted a nil certGenerator")
	}
}

func TestProxyHTTPRewritesResponse(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, "hello")
	}))
	defer upstream.Close()

	rw := &stubRewriter{}
	p := newTestProxy(t, rw)
	port, err := p.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	res, err := proxyClient(t, port).Get(upstream.URL)
	if err != nil {
		t.Fatalf("GET through proxy: %v", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if string(body) != "hello" {
		t.Errorf("body = %q, want %q", body, "hello")
	}
	if res.Header.Get("X-Rewritten") != "1" {
		t.Error("rewriter was not applied to the response")
	}
	if rw.calls != 1 {
		t.Errorf("rewriter called %d times, want 1", rw.calls)
	}
}

func TestProxyHTTPRewriterError(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "hello")
	}))
	defer upstream.Close()

	p := newTestProxy(t, &stubRewriter{fail: true})
	port, err := p.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	res, err := proxyClient(t, port).Get(upstream.URL)
	if err != nil {
		t.Fatalf("GET through proxy: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", res.StatusCode, http.StatusBadGateway)
	}
}

func TestShouldMITM(t *testing.T) {
	t.Parallel()

	p := newTestProxy(t, &stubRewriter{})
	p.addTransparentHost("pinned.example.com")

	tests := []struct {
		host string
		want bool
	}{
		{"example.com", true},
		{"pinned.example.com", false},
		{"api.pinned.example.com", false},
		{"notpinned.example.com", true},
	}
	for _, test := range tests {
		if got := p.shouldMITM(test.host); got != test.want {
			t.Errorf("shouldMITM(%q) = %t, want %t", test.host, got, test.want)
		}
	}
}

func TestRemoveHopHeaders(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	h.Set("Connection", "keep-alive")
	h.Set("Proxy-Authorization", "Basic abc")
	h.Set("Content-Type", "text/html")

	removeHopHeaders(h)

	if h.Get("Connection") != "" || h.Get("Proxy-Authorization") != "" {
		t.Errorf("hop-by-hop headers not removed: %v", h)
	}
	if h.Get("Content-Type") != "text/html" {
		t.Errorf("end-to-end header removed: %v", h)
	}
}
