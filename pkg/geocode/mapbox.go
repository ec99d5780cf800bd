package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rotisserie/eris"
)

const mapboxGeocodeURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

// mapboxGeocodeResponse is the JSON response from the Mapbox Places API.
type mapboxGeocodeResponse struct {
	Features []mapboxFeature `json:"features"`
}

type mapboxFeature struct {
	PlaceName string    `json:"place_name"`
	Center    []float64 `json:"center"` // [lng, lat]
	Relevance float64   `json:"relevance"`
}

// mapboxQuery renders the dashed free-text form the Mapbox places search
// matches best for Brazilian addresses.
func mapboxQuery(addr Address) string {
	return fmt.Sprintf("%s - %s, %s - %s, %s",
		addr.Logradouro, addr.Bairro, addr.Cidade, addr.UF, addr.Numero)
}

func (g *geocoder) geocodeMapbox(ctx context.Context, addr Address) (*Coordinates, error) {
	params := url.Values{
		"limit":        {"1"},
		"access_token": {g.token},
	}

	reqURL := mapboxGeocodeURL + "/" + url.PathEscape(mapboxQuery(addr)) + ".json?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: mapbox build request")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: mapbox request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: mapbox returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: mapbox read body")
	}

	var mapboxResp mapboxGeocodeResponse
	if err := json.Unmarshal(body, &mapboxResp); err != nil {
		return nil, eris.Wrap(err, "geocode: mapbox parse response")
	}

	if len(mapboxResp.Features) == 0 || len(mapboxResp.Features[0].Center) < 2 {
		return nil, nil
	}

	center := mapboxResp.Features[0].Center
	return &Coordinates{Lng: center[0], Lat: center[1]}, nil
}
