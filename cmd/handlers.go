package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/devix-tecnologia/directus-extension-endereco-br/internal/hooks"
	"github.com/devix-tecnologia/directus-extension-endereco-br/internal/platform"
	"github.com/devix-tecnologia/directus-extension-endereco-br/pkg/viacep"
)

// cepOption is one entry of the CEP endpoint response. Value is absent on
// lookup failure so form UIs can show Text without a selectable value.
type cepOption struct {
	Text  string  `json:"text"`
	Value *string `json:"value,omitempty"`
}

const (
	cepNotFoundText    = "Valor de cep inválido"
	cepUnavailableText = "Serviço indisponível no momento. Tente novamente mais tarde."
)

// newRouter wires the HTTP surface: health, the CEP lookup endpoint, and
// the address item routes that run the enrichment hooks.
func newRouter(cepClient viacep.Client, addresses *hooks.Items) chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/pesquisa-cep/{cep}", cepHandler(cepClient))
	r.Post("/items/endereco_br", createAddressHandler(addresses))
	r.Patch("/items/endereco_br/{id}", updateAddressHandler(addresses))
	return r
}

// cepHandler resolves a CEP through the lookup provider. Provider problems
// never surface as HTTP errors: the response stays 200 with an explanatory
// text and no value, which keeps autocomplete UIs working.
func cepHandler(client viacep.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cleaned := viacep.Clean(chi.URLParam(r, "cep"))
		zap.L().Info("cep lookup requested", zap.String("cep", cleaned))

		if len(cleaned) != 8 {
			w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, post-check=0, pre-check=0")
			w.Header().Set("Pragma", "no-cache")
			w.Header().Set("Expires", "0")
			http.Error(w, "Valor de CEP invalido.", http.StatusBadRequest)
			return
		}

		result, err := client.Lookup(r.Context(), cleaned)
		if err != nil {
			zap.L().Error("cep lookup failed", zap.String("cep", cleaned), zap.Error(err))
			writeJSON(w, http.StatusOK, []cepOption{{Text: cepUnavailableText}})
			return
		}
		if result == nil {
			writeJSON(w, http.StatusOK, []cepOption{{Text: cepNotFoundText}})
			return
		}

		raw, err := json.Marshal(result)
		if err != nil {
			writeJSON(w, http.StatusOK, []cepOption{{Text: cepUnavailableText}})
			return
		}
		value := string(raw)
		writeJSON(w, http.StatusOK, []cepOption{{Text: result.DisplayText(), Value: &value}})
	}
}

func createAddressHandler(addresses *hooks.Items) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload platform.Item
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		id, err := addresses.Create(r.Context(), payload)
		if err != nil {
			zap.L().Warn("address create rejected", zap.Error(err))
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
	}
}

func updateAddressHandler(addresses *hooks.Items) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var patch platform.Item
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if err := addresses.Update(r.Context(), id, patch); err != nil {
			if platform.IsNotFound(err) {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "address not found"})
				return
			}
			zap.L().Warn("address update rejected", zap.String("id", id), zap.Error(err))
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": id})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
