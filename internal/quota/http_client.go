package quota

import (
	"context"
	stderrors "errors"
	"math/rand"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	utls "github.com/refraction-networking/utls"
)

// Doer abstracts the outbound HTTP client so tests can inject a plain one.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPClient is the shared outbound client for token refresh and quota calls.
// Requests that pin their own User-Agent pass through untouched; everything
// else gets rotating desktop browser headers. PROXYDECK_UTLS=1 swaps the TLS
// dialer for a Chrome ClientHello.
type HTTPClient struct {
	client      *http.Client
	userAgents  []string
	langs       []string
	rng         *rand.Rand
	mu          sync.Mutex
	defaultUA   string
	defaultLang string
}

func NewHTTPClient() *HTTPClient {
	useUTLS := strings.TrimSpace(os.Getenv("PROXYDECK_UTLS")) == "1"
	client := &http.Client{
		Timeout:   30 * time.Second,
		Transport: newTransport(useUTLS),
	}

	return &HTTPClient{
		client: client,
		userAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
		},
		langs:       []string{"en-US,en;q=0.9", "en-GB,en;q=0.8"},
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		defaultUA:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		defaultLang: "en-US,en;q=0.9",
	}
}

func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, stderrors.New("nil request")
	}
	c.applyHeaders(req)
	return c.client.Do(req)
}

func (c *HTTPClient) applyHeaders(req *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ua := c.defaultUA
	lang := c.defaultLang
	if len(c.userAgents) > 0 {
		ua = c.userAgents[c.rng.Intn(len(c.userAgents))]
	}
	if len(c.langs) > 0 {
		lang = c.langs[c.rng.Intn(len(c.langs))]
	}

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", ua)
	}
	if req.Header.Get("Accept-Language") == "" {
		req.Header.Set("Accept-Language", lang)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json, text/plain, */*")
	}
}

func newTransport(useUTLS bool) http.RoundTripper {
	if !useUTLS {
		return &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
		}
	}

	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			rawConn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host := addr
			if strings.Contains(addr, ":") {
				host, _, _ = net.SplitHostPort(addr)
			}
			config := &utls.Config{
				ServerName: host,
				NextProtos: []string{"h2", "http/1.1"},
			}
			uconn := utls.UClient(rawConn, config, utls.HelloChrome_120)
			if err := uconn.Handshake(); err != nil {
				_ = rawConn.Close()
				return nil, err
			}
			return uconn, nil
		},
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
	}
}

var _ Doer = (*HTTPClient)(nil)
