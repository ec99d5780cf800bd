package endereco

import (
	"context"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/devix-tecnologia/directus-extension-endereco-br/internal/platform"
	"github.com/devix-tecnologia/directus-extension-endereco-br/pkg/geocode"
)

// Dispatcher geocodes addresses after they are committed and patches the
// coordinates back. It is fire-and-forget: failures are logged and the
// record is left unchanged, never surfacing to the request that triggered
// the write.
type Dispatcher struct {
	store    platform.Store
	geocoder geocode.Client
}

// NewDispatcher builds a dispatcher. A nil geocoder (no auth token
// configured) turns every dispatch into a warn-and-skip.
func NewDispatcher(store platform.Store, geocoder geocode.Client) *Dispatcher {
	return &Dispatcher{store: store, geocoder: geocoder}
}

// AfterCreate geocodes one freshly created address.
func (d *Dispatcher) AfterCreate(ctx context.Context, id string) {
	log := zap.L().Named("geocode")
	if d.geocoder == nil {
		log.Warn("geolocation auth token not configured, skipping")
		return
	}
	log.Info("updating coordinates", zap.String("endereco", id))
	d.geocodeOne(ctx, log, id)
}

// AfterUpdate geocodes every updated address, unless the update payload
// itself carries the coordinate field: that write came from a previous
// dispatch and must not trigger another one.
func (d *Dispatcher) AfterUpdate(ctx context.Context, ids []string, payload platform.Item) {
	log := zap.L().Named("geocode")
	if _, ok := payload[FieldLocalizacao]; ok {
		return
	}
	if d.geocoder == nil {
		log.Warn("geolocation auth token not configured, skipping")
		return
	}
	log.Info("updating coordinates", zap.Strings("enderecos", ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, id := range ids {
		g.Go(func() error {
			d.geocodeOne(gctx, log, id)
			return nil
		})
	}
	g.Wait() //nolint:errcheck
}

func (d *Dispatcher) geocodeOne(ctx context.Context, log *zap.Logger, id string) {
	record, err := d.store.Items("endereco_br").ReadOne(ctx, id, []string{
		"id",
		"logradouro",
		"numero",
		"bairro.nome",
		"bairro.cidade.nome",
		"bairro.cidade.estado.sigla",
	})
	if err != nil {
		log.Warn("read address failed", zap.String("endereco", id), zap.Error(err))
		return
	}

	bairro, _ := record["bairro"].(platform.Item)
	if bairro == nil {
		log.Debug("address has no resolved neighborhood", zap.String("endereco", id))
		return
	}
	cidade, _ := bairro["cidade"].(platform.Item)
	if cidade == nil {
		log.Debug("neighborhood has no city", zap.String("endereco", id))
		return
	}
	estado, _ := cidade["estado"].(platform.Item)
	if estado == nil {
		log.Debug("city has no state", zap.String("endereco", id))
		return
	}

	addr := geocode.Address{
		Logradouro: str(record["logradouro"]),
		Numero:     str(record["numero"]),
		Bairro:     str(bairro["nome"]),
		Cidade:     str(cidade["nome"]),
		UF:         str(estado["sigla"]),
	}

	coords, err := d.geocoder.Geocode(ctx, addr)
	if err != nil {
		log.Warn("geocoding failed", zap.String("endereco", id), zap.Error(err))
		return
	}
	if coords == nil {
		log.Debug("no geocoding match", zap.String("endereco", id))
		return
	}

	point := geom.NewPoint(geom.XY).MustSetCoords(geom.Coord{coords.Lng, coords.Lat})
	loc, err := geojson.Encode(point)
	if err != nil {
		log.Warn("encode coordinates failed", zap.String("endereco", id), zap.Error(err))
		return
	}
	if err := d.store.Items("endereco_br").UpdateOne(ctx, id, platform.Item{
		FieldLocalizacao: loc,
	}); err != nil {
		log.Warn("patch coordinates failed", zap.String("endereco", id), zap.Error(err))
		return
	}
	log.Info("coordinates updated",
		zap.String("endereco", id),
		zap.Float64("lng", coords.Lng),
		zap.Float64("lat", coords.Lat))
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
