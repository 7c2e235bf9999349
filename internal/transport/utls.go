// Package transport provides an HTTP client whose TLS handshake carries a
// Firefox fingerprint. Kick fronts both its identity endpoints and the public
// channel API with Cloudflare TLS fingerprinting; Go's native handshake is
// flagged as automation while a browser hello passes.
package transport

import (
	"net/http"
	"net/url"
	"strings"
	"sync"

	tls "github.com/refraction-networking/utls"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/proxy"
)

// utlsRoundTripper implements http.RoundTripper using utls with a Firefox
// ClientHello over HTTP/2.
type utlsRoundTripper struct {
	// mu guards connections and pending.
	mu sync.Mutex
	// connections caches one HTTP/2 client connection per host.
	connections map[string]*http2.ClientConn
	// pending marks hosts with a handshake in flight so concurrent requests
	// wait for it instead of dialing their own.
	pending map[string]*sync.Cond
	// dialer creates the underlying TCP connections, through a proxy when
	// one is configured.
	dialer proxy.Dialer
}

// NewBrowserClient creates an HTTP client with the Firefox fingerprint
// transport. proxyURL may be empty for direct connections.
func NewBrowserClient(proxyURL string) *http.Client {
	return &http.Client{Transport: newUtlsRoundTripper(proxyURL)}
}

func newUtlsRoundTripper(proxyURL string) *utlsRoundTripper {
	var dialer proxy.Dialer = proxy.Direct
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			log.Errorf("failed to parse proxy URL %q: %v", proxyURL, err)
		} else {
			pDialer, errDialer := proxy.FromURL(parsed, proxy.Direct)
			if errDialer != nil {
				log.Errorf("failed to create proxy dialer for %q: %v", proxyURL, errDialer)
			} else {
				dialer = pDialer
			}
		}
	}

	return &utlsRoundTripper{
		connections: make(map[string]*http2.ClientConn),
		pending:     make(map[string]*sync.Cond),
		dialer:      dialer,
	}
}

// getOrCreateConnection returns the host's cached connection, waiting out an
// in-flight handshake first, and dials a fresh one only when neither yields a
// usable connection.
func (t *utlsRoundTripper) getOrCreateConnection(host, addr string) (*http2.ClientConn, error) {
	t.mu.Lock()

	if h2Conn, ok := t.connections[host]; ok && h2Conn.CanTakeNewRequest() {
		t.mu.Unlock()
		return h2Conn, nil
	}

	if cond, ok := t.pending[host]; ok {
		cond.Wait()
		if h2Conn, ok2 := t.connections[host]; ok2 && h2Conn.CanTakeNewRequest() {
			t.mu.Unlock()
			return h2Conn, nil
		}
	}

	cond := sync.NewCond(&t.mu)
	t.pending[host] = cond
	t.mu.Unlock()

	// The handshake runs outside the lock; the pending marker keeps other
	// goroutines from racing it.
	h2Conn, err := t.createConnection(host, addr)

	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.pending, host)
	cond.Broadcast()

	if err != nil {
		return nil, err
	}

	t.connections[host] = h2Conn
	return h2Conn, nil
}

// createConnection creates a new HTTP/2 connection with the Firefox TLS fingerprint.
func (t *utlsRoundTripper) createConnection(host, addr string) (*http2.ClientConn, error) {
	conn, err := t.dialer.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{ServerName: host}
	tlsConn := tls.UClient(conn, tlsConfig, tls.HelloFirefox_Auto)

	if err = tlsConn.Handshake(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	tr := &http2.Transport{}
	h2Conn, err := tr.NewClientConn(tlsConn)
	if err != nil {
		_ = tlsConn.Close()
		return nil, err
	}

	return h2Conn, nil
}

// RoundTrip implements http.RoundTripper.
func (t *utlsRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	host := req.URL.Host
	addr := host
	if !strings.Contains(addr, ":") {
		addr += ":443"
	}

	hostname := req.URL.Hostname()

	h2Conn, err := t.getOrCreateConnection(hostname, addr)
	if err != nil {
		return nil, err
	}

	resp, err := h2Conn.RoundTrip(req)
	if err != nil {
		// Drop the broken connection so the next request redials.
		t.mu.Lock()
		if cached, ok := t.connections[hostname]; ok && cached == h2Conn {
			delete(t.connections, hostname)
		}
		t.mu.Unlock()
		return nil, err
	}

	return resp, nil
}
