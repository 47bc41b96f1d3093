package api

import (
	"clusterdir/internal/registry"
	"clusterdir/internal/types"
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const APIKeyHdrName = "x-api-key"

// Directory is the set of client operations served over HTTP.
type Directory interface {
	CreateChannel(ctx context.Context, name string) error
	DeleteChannel(ctx context.Context, name string) error
	ListChannels(ctx context.Context) ([]string, error)

	RegisterCluster(ctx context.Context, slug, environment string, props, secretProps types.Props, channels []string) error
	UpdateCluster(ctx context.Context, slug string, u registry.Update) error
	UnregisterCluster(ctx context.Context, slug string) error
	ListClusters(ctx context.Context) ([]string, error)
	GetCluster(ctx context.Context, slug string) (types.Cluster, error)
	FindClusters(ctx context.Context, expr string) ([]string, error)

	AddClusterToChannel(ctx context.Context, slug, channel string) error
	RemoveClusterFromChannel(ctx context.Context, slug, channel string) error
	ListClustersByChannel(ctx context.Context, channel string) ([]string, error)

	AddServiceAccount(ctx context.Context, doc types.ServiceAccount) error
	GetServiceAccount(ctx context.Context, email string) (types.ServiceAccount, error)
	RemoveServiceAccount(ctx context.Context, email string) error
	ListServiceAccounts(ctx context.Context) ([]string, error)

	GetCommon(ctx context.Context, provider string) (types.Props, error)
}

type Handler struct {
	Dir    Directory
	APIKey string
}

// registerRequest is the body of POST /clusters.
type registerRequest struct {
	Slug        string      `json:"slug"`
	Environment string      `json:"environment"`
	Props       types.Props `json:"props"`
	SecretProps types.Props `json:"secretProps"`
	Channels    []string    `json:"channels"`
}

// updateRequest is the body of PUT /clusters/{slug}.
type updateRequest struct {
	Environment string      `json:"environment"`
	Props       types.Props `json:"props"`
	SecretProps types.Props `json:"secretProps"`
}

type channelRequest struct {
	Name string `json:"name"`
}

func NewHandler(dir Directory, apiKey string) *Handler {
	return &Handler{Dir: dir, APIKey: apiKey}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /channels", h.auth(h.listChannels))
	mux.HandleFunc("POST /channels", h.auth(h.createChannel))
	mux.HandleFunc("DELETE /channels/{name}", h.auth(h.deleteChannel))
	mux.HandleFunc("GET /channels/{name}/clusters", h.auth(h.listClustersByChannel))

	mux.HandleFunc("GET /clusters", h.auth(h.listClusters))
	mux.HandleFunc("POST /clusters", h.auth(h.registerCluster))
	mux.HandleFunc("GET /clusters/{slug}", h.auth(h.getCluster))
	mux.HandleFunc("PUT /clusters/{slug}", h.auth(h.updateCluster))
	mux.HandleFunc("DELETE /clusters/{slug}", h.auth(h.unregisterCluster))
	mux.HandleFunc("PUT /clusters/{slug}/channels/{channel}", h.auth(h.addClusterToChannel))
	mux.HandleFunc("DELETE /clusters/{slug}/channels/{channel}", h.auth(h.removeClusterFromChannel))

	mux.HandleFunc("GET /service-accounts", h.auth(h.listServiceAccounts))
	mux.HandleFunc("POST /service-accounts", h.auth(h.addServiceAccount))
	mux.HandleFunc("GET /service-accounts/{email}", h.auth(h.getServiceAccount))
	mux.HandleFunc("DELETE /service-accounts/{email}", h.auth(h.removeServiceAccount))

	mux.HandleFunc("GET /common/{provider}", h.auth(h.getCommon))
	return mux
}

// auth rejects requests without the configured API key. No key configured means no check.
func (h *Handler) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.APIKey != "" {
			got := r.Header.Get(APIKeyHdrName)
			if subtle.ConstantTimeCompare([]byte(got), []byte(h.APIKey)) != 1 {
				http.Error(w, "invalid credentials", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (h *Handler) listChannels(w http.ResponseWriter, r *http.Request) {
	names, err := h.Dir.ListChannels(r.Context())
	h.respond(w, http.StatusOK, names, err)
}

func (h *Handler) createChannel(w http.ResponseWriter, r *http.Request) {
	var req channelRequest
	if !readJSON(w, r, &req) {
		return
	}
	err := h.Dir.CreateChannel(r.Context(), req.Name)
	h.respond(w, http.StatusCreated, map[string]any{"name": req.Name}, err)
}

func (h *Handler) deleteChannel(w http.ResponseWriter, r *http.Request) {
	err := h.Dir.DeleteChannel(r.Context(), r.PathValue("name"))
	h.respond(w, http.StatusNoContent, nil, err)
}

func (h *Handler) listClustersByChannel(w http.ResponseWriter, r *http.Request) {
	slugs, err := h.Dir.ListClustersByChannel(r.Context(), r.PathValue("name"))
	h.respond(w, http.StatusOK, slugs, err)
}

// listClusters serves GET /clusters, filtered by a JMESPath expression in ?where=.
func (h *Handler) listClusters(w http.ResponseWriter, r *http.Request) {
	var (
		slugs []string
		err   error
	)
	if where := r.URL.Query().Get("where"); where != "" {
		slugs, err = h.Dir.FindClusters(r.Context(), where)
	} else {
		slugs, err = h.Dir.ListClusters(r.Context())
	}
	h.respond(w, http.StatusOK, slugs, err)
}

func (h *Handler) registerCluster(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !readJSON(w, r, &req) {
		return
	}
	err := h.Dir.RegisterCluster(r.Context(), req.Slug, req.Environment, req.Props, req.SecretProps, req.Channels)
	h.respond(w, http.StatusCreated, map[string]any{"slug": req.Slug}, err)
}

func (h *Handler) getCluster(w http.ResponseWriter, r *http.Request) {
	cl, err := h.Dir.GetCluster(r.Context(), r.PathValue("slug"))
	h.respond(w, http.StatusOK, cl, err)
}

func (h *Handler) updateCluster(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !readJSON(w, r, &req) {
		return
	}
	err := h.Dir.UpdateCluster(r.Context(), r.PathValue("slug"), registry.Update{
		Environment: req.Environment,
		Props:       req.Props,
		SecretProps: req.SecretProps,
	})
	h.respond(w, http.StatusNoContent, nil, err)
}

func (h *Handler) unregisterCluster(w http.ResponseWriter, r *http.Request) {
	err := h.Dir.UnregisterCluster(r.Context(), r.PathValue("slug"))
	h.respond(w, http.StatusNoContent, nil, err)
}

func (h *Handler) addClusterToChannel(w http.ResponseWriter, r *http.Request) {
	err := h.Dir.AddClusterToChannel(r.Context(), r.PathValue("slug"), r.PathValue("channel"))
	h.respond(w, http.StatusNoContent, nil, err)
}

func (h *Handler) removeClusterFromChannel(w http.ResponseWriter, r *http.Request) {
	err := h.Dir.RemoveClusterFromChannel(r.Context(), r.PathValue("slug"), r.PathValue("channel"))
	h.respond(w, http.StatusNoContent, nil, err)
}

func (h *Handler) listServiceAccounts(w http.ResponseWriter, r *http.Request) {
	emails, err := h.Dir.ListServiceAccounts(r.Context())
	h.respond(w, http.StatusOK, emails, err)
}

func (h *Handler) addServiceAccount(w http.ResponseWriter, r *http.Request) {
	var doc types.ServiceAccount
	if !readJSON(w, r, &doc) {
		return
	}
	email, _ := doc.Email()
	err := h.Dir.AddServiceAccount(r.Context(), doc)
	h.respond(w, http.StatusCreated, map[string]any{"client_email": email}, err)
}

func (h *Handler) getServiceAccount(w http.ResponseWriter, r *http.Request) {
	doc, err := h.Dir.GetServiceAccount(r.Context(), r.PathValue("email"))
	h.respond(w, http.StatusOK, doc, err)
}

func (h *Handler) removeServiceAccount(w http.ResponseWriter, r *http.Request) {
	err := h.Dir.RemoveServiceAccount(r.Context(), r.PathValue("email"))
	h.respond(w, http.StatusNoContent, nil, err)
}

func (h *Handler) getCommon(w http.ResponseWriter, r *http.Request) {
	props, err := h.Dir.GetCommon(r.Context(), r.PathValue("provider"))
	h.respond(w, http.StatusOK, props, err)
}

// respond writes v with code, or maps err to a status.
func (h *Handler) respond(w http.ResponseWriter, code int, v any, err error) {
	if err != nil {
		status := StatusFor(err)
		if status == http.StatusInternalServerError {
			log.WithError(err).Error("request failed")
		}
		http.Error(w, err.Error(), status)
		return
	}
	if code == http.StatusNoContent || v == nil {
		w.WriteHeader(code)
		return
	}
	if err := writeJSON(w, code, v); err != nil {
		log.WithError(err).Warn("failed to write response")
	}
}

// StatusFor maps directory errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrUnsupported):
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return false
	}
	defer func() {
		_ = r.Body.Close()
	}()
	if len(body) == 0 {
		http.Error(w, "empty body", http.StatusBadRequest)
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}
