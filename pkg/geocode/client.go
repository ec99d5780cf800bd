// Package geocode turns Brazilian street addresses into coordinates via the
// Google Geocoding API or the Mapbox Places API.
package geocode

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Providers accepted by NewClient.
const (
	ProviderGoogle = "google"
	ProviderMapbox = "mapbox"
)

// Address is the input to a geocoding request. All fields are plain,
// already-resolved names; Numero may be empty.
type Address struct {
	Logradouro string
	Numero     string
	Bairro     string
	Cidade     string
	UF         string
}

// Coordinates is a WGS84 position, longitude first to match GeoJSON.
type Coordinates struct {
	Lng float64
	Lat float64
}

// Client geocodes addresses through a single configured provider.
type Client interface {
	// Geocode resolves an address. An address the provider cannot place
	// returns (nil, nil); transport and decoding problems return an error.
	Geocode(ctx context.Context, addr Address) (*Coordinates, error)
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit for provider calls.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		g.limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
	}
}

type geocoder struct {
	provider   string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a Client for the named provider ("google" or "mapbox")
// authenticated with the given token.
func NewClient(provider, token string, opts ...Option) (Client, error) {
	if provider != ProviderGoogle && provider != ProviderMapbox {
		return nil, eris.Errorf("geocode: unknown provider %q", provider)
	}
	if token == "" {
		return nil, eris.Errorf("geocode: %s auth token not configured", provider)
	}
	g := &geocoder{
		provider:   provider,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Geocode implements Client.
func (g *geocoder) Geocode(ctx context.Context, addr Address) (*Coordinates, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limit")
	}
	if g.provider == ProviderMapbox {
		return g.geocodeMapbox(ctx, addr)
	}
	return g.geocodeGoogle(ctx, addr)
}
