package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAddress = Address{
	Logradouro: "Praça da Sé",
	Numero:     "100",
	Bairro:     "Sé",
	Cidade:     "São Paulo",
	UF:         "SP",
}

func TestNewClientValidation(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		token    string
		wantErr  string
	}{
		{"google ok", ProviderGoogle, "key", ""},
		{"mapbox ok", ProviderMapbox, "token", ""},
		{"unknown provider", "osm", "token", "unknown provider"},
		{"missing token", ProviderGoogle, "", "auth token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(tt.provider, tt.token)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, c)
		})
	}
}

func TestQueryFormats(t *testing.T) {
	assert.Equal(t, "100+Praça da Sé,Sé,São Paulo,SP", googleQuery(testAddress))
	assert.Equal(t, "Praça da Sé - Sé, São Paulo - SP, 100", mapboxQuery(testAddress))
}

func TestGeocodeGoogle(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("address")
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": "OK",
			"results": [{
				"formatted_address": "Praça da Sé, 100 - Sé, São Paulo - SP, Brasil",
				"geometry": {"location": {"lat": -23.5503, "lng": -46.6332}}
			}]
		}`))
	}))
	defer server.Close()

	c, err := NewClient(ProviderGoogle, "test-key",
		WithHTTPClient(newRewriteClient(server.URL, googleGeocodeURL)))
	require.NoError(t, err)

	coords, err := c.Geocode(context.Background(), testAddress)
	require.NoError(t, err)
	require.NotNil(t, coords)
	assert.Equal(t, "100+Praça da Sé,Sé,São Paulo,SP", gotQuery)
	assert.InDelta(t, -46.6332, coords.Lng, 1e-9)
	assert.InDelta(t, -23.5503, coords.Lat, 1e-9)
}

func TestGeocodeGoogleZeroResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "ZERO_RESULTS", "results": []}`))
	}))
	defer server.Close()

	c, err := NewClient(ProviderGoogle, "test-key",
		WithHTTPClient(newRewriteClient(server.URL, googleGeocodeURL)))
	require.NoError(t, err)

	coords, err := c.Geocode(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Nil(t, coords)
}

func TestGeocodeMapbox(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "test-token", r.URL.Query().Get("access_token"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"features": [{
				"place_name": "Praça da Sé 100, São Paulo, Brazil",
				"center": [-46.6332, -23.5503],
				"relevance": 0.9
			}]
		}`))
	}))
	defer server.Close()

	c, err := NewClient(ProviderMapbox, "test-token",
		WithHTTPClient(newRewriteClient(server.URL, mapboxGeocodeURL)))
	require.NoError(t, err)

	coords, err := c.Geocode(context.Background(), testAddress)
	require.NoError(t, err)
	require.NotNil(t, coords)
	assert.Contains(t, gotPath, ".json")
	assert.InDelta(t, -46.6332, coords.Lng, 1e-9)
	assert.InDelta(t, -23.5503, coords.Lat, 1e-9)
}

func TestGeocodeMapboxNoFeatures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"features": []}`))
	}))
	defer server.Close()

	c, err := NewClient(ProviderMapbox, "test-token",
		WithHTTPClient(newRewriteClient(server.URL, mapboxGeocodeURL)))
	require.NoError(t, err)

	coords, err := c.Geocode(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Nil(t, coords)
}

func TestGeocodeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c, err := NewClient(ProviderGoogle, "test-key",
		WithHTTPClient(newRewriteClient(server.URL, googleGeocodeURL)))
	require.NoError(t, err)

	_, err = c.Geocode(context.Background(), testAddress)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}
