package zkproof

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Artifact names served relative to the artifact base URL.
const (
	ArtifactCircuit      = "circuit.r1cs"
	ArtifactProvingKey   = "proving.key"
	ArtifactVerifyingKey = "verifying.key"
)

var ErrArtifactsUnavailable = errors.New("zkproof: circuit artifacts unavailable")

// ArtifactSet holds the raw bytes of the three published circuit artifacts.
type ArtifactSet struct {
	Circuit      []byte
	ProvingKey   []byte
	VerifyingKey []byte
}

type availability struct {
	available bool
	checkedAt time.Time
}

// ArtifactClient probes and fetches circuit artifacts. Probe results are
// cached with their refresh timestamp for a bounded interval so repeated
// proof generation does not hammer the artifact store; Available's force
// parameter bypasses the cache. Negative results are never trusted past the
// probe window.
type ArtifactClient struct {
	baseURL string
	hc      *http.Client
	limiter *rate.Limiter
	ttl     time.Duration

	mu     sync.Mutex
	cached *availability
	now    func() time.Time
}

// NewArtifactClient builds a client for the given base URL. ttl bounds how
// long a probe result is reused; zero selects a one-minute default.
func NewArtifactClient(baseURL string, hc *http.Client, ttl time.Duration) *ArtifactClient {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &ArtifactClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      hc,
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 3),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *ArtifactClient) artifactURL(name string) (string, error) {
	u, err := url.Parse(c.baseURL + "/" + name)
	if err != nil {
		return "", fmt.Errorf("zkproof: bad artifact url: %w", err)
	}
	return u.String(), nil
}

// Available reports whether all three artifacts exist and look like binary
// payloads. An HTML body at an artifact path (a storage provider's styled
// 404 page) counts as unavailable, not as an artifact.
func (c *ArtifactClient) Available(ctx context.Context, force bool) (bool, error) {
	c.mu.Lock()
	if !force && c.cached != nil && c.now().Sub(c.cached.checkedAt) < c.ttl {
		cached := c.cached.available
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	if err := c.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("%w: %v", ErrArtifactsUnavailable, err)
	}

	available := true
	var probeErr error
	for _, name := range []string{ArtifactCircuit, ArtifactProvingKey, ArtifactVerifyingKey} {
		ok, err := c.probeOne(ctx, name)
		if err != nil {
			probeErr = err
		}
		if !ok {
			available = false
			break
		}
	}

	c.mu.Lock()
	c.cached = &availability{available: available, checkedAt: c.now()}
	c.mu.Unlock()
	return available, probeErr
}

func (c *ArtifactClient) probeOne(ctx context.Context, name string) (bool, error) {
	target, err := c.artifactURL(name)
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrArtifactsUnavailable, name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%w: %s: http %d", ErrArtifactsUnavailable, name, resp.StatusCode)
	}
	if isHTMLContentType(resp.Header.Get("Content-Type")) {
		return false, fmt.Errorf("%w: %s served as html", ErrArtifactsUnavailable, name)
	}
	return true, nil
}

// Fetch downloads all three artifacts. Bodies are sniffed as a second line
// of defense against error pages served with a misleading content type.
func (c *ArtifactClient) Fetch(ctx context.Context) (*ArtifactSet, error) {
	circuit, err := c.fetchOne(ctx, ArtifactCircuit)
	if err != nil {
		return nil, err
	}
	pk, err := c.fetchOne(ctx, ArtifactProvingKey)
	if err != nil {
		return nil, err
	}
	vk, err := c.fetchOne(ctx, ArtifactVerifyingKey)
	if err != nil {
		return nil, err
	}
	return &ArtifactSet{Circuit: circuit, ProvingKey: pk, VerifyingKey: vk}, nil
}

func (c *ArtifactClient) fetchOne(ctx context.Context, name string) ([]byte, error) {
	target, err := c.artifactURL(name)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifactsUnavailable, name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: http %d", ErrArtifactsUnavailable, name, resp.StatusCode)
	}
	if isHTMLContentType(resp.Header.Get("Content-Type")) {
		return nil, fmt.Errorf("%w: %s served as html", ErrArtifactsUnavailable, name)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifactsUnavailable, name, err)
	}
	if looksLikeHTML(body) {
		return nil, fmt.Errorf("%w: %s body looks like an html page", ErrArtifactsUnavailable, name)
	}
	return body, nil
}

func isHTMLContentType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	return strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml")
}

func looksLikeHTML(body []byte) bool {
	head := bytes.TrimLeft(body[:min(len(body), 64)], " \t\r\n")
	lower := bytes.ToLower(head)
	return bytes.HasPrefix(lower, []byte("<!doctype")) || bytes.HasPrefix(lower, []byte("<html"))
}
