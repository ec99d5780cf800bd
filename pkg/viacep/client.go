// Package viacep resolves Brazilian postal codes (CEPs) through the ViaCEP API.
package viacep

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://viacep.com.br"

// Client looks up address data for a CEP.
type Client interface {
	// Lookup resolves a CEP. A CEP unknown to the provider returns
	// (nil, nil); transport and decoding problems return an error.
	Lookup(ctx context.Context, cep string) (*Result, error)
}

// Result is a successful ViaCEP lookup.
type Result struct {
	Cep         string `json:"cep"`
	Logradouro  string `json:"logradouro"`
	Complemento string `json:"complemento"`
	Bairro      string `json:"bairro"`
	Localidade  string `json:"localidade"`
	UF          string `json:"uf"`
	IBGE        string `json:"ibge"`
	GIA         string `json:"gia"`
	DDD         string `json:"ddd"`
	SIAFI       string `json:"siafi"`
}

// DisplayText renders the one-line human-readable summary shown in
// autocomplete UIs.
func (r *Result) DisplayText() string {
	return r.Logradouro + " - " + r.Bairro + " - " + r.Localidade + " - " + r.UF
}

// Clean strips everything but digits from a raw CEP value.
func Clean(cep string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(cep) {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Option configures the client.
type Option func(*client)

// WithBaseURL overrides the ViaCEP endpoint, mainly for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit for lookups.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
	}
}

type client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a ViaCEP client with the given options.
func NewClient(opts ...Option) Client {
	c := &client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// lookupPayload covers both response shapes: the success fields plus the
// "erro" marker ViaCEP returns for unknown CEPs.
type lookupPayload struct {
	Result
	Erro json.RawMessage `json:"erro"`
}

// Lookup implements Client.
func (c *client) Lookup(ctx context.Context, cep string) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "viacep: rate limit")
	}

	cleaned := Clean(cep)
	if len(cleaned) != 8 {
		return nil, eris.Errorf("viacep: cep must have 8 digits, got %q", cep)
	}

	reqURL := c.baseURL + "/ws/" + cleaned + "/json/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "viacep: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "viacep: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("viacep: returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "viacep: read body")
	}

	var payload lookupPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, eris.Wrap(err, "viacep: parse response")
	}
	if len(payload.Erro) > 0 {
		return nil, nil
	}
	return &payload.Result, nil
}
