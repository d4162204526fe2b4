// Package storage downloads encrypted content and proof packages from the
// configured providers: content gateways in priority order, the proof store
// with gateway fallback. It returns bytes; interpreting them is the caller's
// job.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"blockdrive/go-sdk/internal/platform/ratelimiter"
)

// Default content gateways in priority order.
var DefaultGateways = []string{
	"https://ipfs.filebase.io/ipfs/",
	"https://cloudflare-ipfs.com/ipfs/",
	"https://ipfs.io/ipfs/",
	"https://gateway.pinata.cloud/ipfs/",
}

// DefaultProofStoreURL is the dedicated proof bucket.
const DefaultProofStoreURL = "https://blockdrive-proofs.r2.cloudflarestorage.com"

var (
	ErrUnavailable       = errors.New("storage: content unavailable from all providers")
	ErrNoGateways        = errors.New("storage: no gateways configured")
	ErrEmptyObjectID     = errors.New("storage: empty object identifier")
	ErrProviderThrottled = errors.New("storage: provider request budget exhausted")
)

// DownloadResult carries the fetched bytes and which provider served them.
type DownloadResult struct {
	Data     []byte
	Provider string
}

// Client walks gateways in order until one serves the object. Requests are
// paced so a recovery run over many files does not hammer public gateways.
type Client struct {
	gateways    []string
	proofStore  string
	hc          *http.Client
	limiter     *rate.Limiter
	perProvider *ratelimiter.MapLimiter
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithGateways replaces the default gateway list.
func WithGateways(gateways []string) Option {
	return func(c *Client) { c.gateways = gateways }
}

// WithProofStore replaces the default proof store base URL.
func WithProofStore(baseURL string) Option {
	return func(c *Client) { c.proofStore = strings.TrimRight(baseURL, "/") }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithLogger attaches a logger; fallbacks are logged, payloads never.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient builds a download client with the default providers.
func NewClient(opts ...Option) *Client {
	c := &Client{
		gateways:    append([]string(nil), DefaultGateways...),
		proofStore:  DefaultProofStoreURL,
		hc:          &http.Client{Timeout: 60 * time.Second},
		limiter:     rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
		perProvider: ratelimiter.New(10, 20, time.Minute),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DownloadContent fetches an object from the content gateways, trying each in
// priority order. The result records which gateway finally served it; the
// error joins every gateway's failure when all of them do.
func (c *Client) DownloadContent(ctx context.Context, cid string) (*DownloadResult, error) {
	if cid == "" {
		return nil, ErrEmptyObjectID
	}
	if len(c.gateways) == 0 {
		return nil, ErrNoGateways
	}

	var failures []error
	for _, gateway := range c.gateways {
		base := strings.TrimRight(gateway, "/")
		data, err := c.get(ctx, base, base+"/"+cid)
		if err == nil {
			return &DownloadResult{Data: data, Provider: gateway}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Debug("gateway failed, trying next",
			slog.String("gateway", base), slog.Any("error", err))
		failures = append(failures, fmt.Errorf("%s: %w", base, err))
	}
	return nil, fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(failures...))
}

// DownloadProof fetches a proof package: the proof store first, then the
// content gateways. Both failure contexts are preserved when everything
// fails.
func (c *Client) DownloadProof(ctx context.Context, proofCID string) (*DownloadResult, error) {
	if proofCID == "" {
		return nil, ErrEmptyObjectID
	}
	data, storeErr := c.get(ctx, c.proofStore, c.proofStore+"/"+proofCID)
	if storeErr == nil {
		return &DownloadResult{Data: data, Provider: "proof-store"}, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	c.logger.Debug("proof store failed, falling back to content gateways",
		slog.Any("error", storeErr))

	result, gatewayErr := c.DownloadContent(ctx, proofCID)
	if gatewayErr != nil {
		return nil, fmt.Errorf("%w: proof store: %w; gateways: %w",
			ErrUnavailable, storeErr, gatewayErr)
	}
	return result, nil
}

// get fetches one URL. The global limiter paces the whole run; the per-
// provider budget keeps a failing walk from hammering any single provider.
func (c *Client) get(ctx context.Context, provider, url string) ([]byte, error) {
	if !c.perProvider.Allow(provider, time.Now()) {
		return nil, ErrProviderThrottled
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
