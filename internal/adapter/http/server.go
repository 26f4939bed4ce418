package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/crop-kc-etl/internal/domain"
)

// CropCatalog lists and resolves crop profiles.
type CropCatalog interface {
	Names() []string
	Lookup(name string) (domain.CropProfile, bool)
}

// Server exposes health, readiness, metrics and crop lookup HTTP endpoints.
type Server struct {
	httpServer *http.Server
	catalog    CropCatalog
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and
// /crops routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, catalog CropCatalog, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		catalog: catalog,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /crops", s.handleCrops)
	mux.HandleFunc("GET /crops/{name}/kc", s.handleKc)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type stageView struct {
	Stage     domain.Stage `json:"stage"`
	Threshold float64      `json:"threshold"`
	Kc        float64      `json:"kc"`
}

type cropView struct {
	Name         string      `json:"name"`
	CanopyHeight float64     `json:"canopy_height"`
	PlantingDate string      `json:"planting_date,omitempty"`
	DayStages    []stageView `json:"day_stages"`
	GDDStages    []stageView `json:"gdd_stages,omitempty"`
}

func stageViews[P domain.Position](bps [4]domain.StageBreakpoint[P]) []stageView {
	out := make([]stageView, len(bps))
	for i, bp := range bps {
		out[i] = stageView{Stage: domain.Stages[i], Threshold: float64(bp.Threshold), Kc: bp.Kc}
	}
	return out
}

func newCropView(p domain.CropProfile) cropView {
	v := cropView{
		Name:         p.Name(),
		CanopyHeight: p.CanopyHeight(),
		DayStages:    stageViews(p.DayModel().Breakpoints()),
	}
	if d, ok := p.PlantingDate(); ok {
		v.PlantingDate = d.Format(domain.DateLayout)
	}
	if m, ok := p.GDDModel(); ok {
		v.GDDStages = stageViews(m.Breakpoints())
	}
	return v
}

func (s *Server) handleCrops(w http.ResponseWriter, _ *http.Request) {
	names := s.catalog.Names()
	crops := make([]cropView, 0, len(names))
	for _, name := range names {
		if p, ok := s.catalog.Lookup(name); ok {
			crops = append(crops, newCropView(p))
		}
	}
	sharedobs.WriteJSON(w, http.StatusOK, crops)
}

type kcResponse struct {
	domain.Result
	Date              string      `json:"date"`
	PlantingDate      string      `json:"planting_date"`
	DaysSincePlanting domain.Days `json:"days_since_planting"`
}

// handleKc evaluates a crop's day-indexed curve for ?date=, optionally
// overriding planting_date, wind_speed, rh_min and canopy_height.
func (s *Server) handleKc(w http.ResponseWriter, r *http.Request) {
	profile, ok := s.catalog.Lookup(r.PathValue("name"))
	if !ok {
		writeError(w, http.StatusNotFound, domain.ErrUnknownCrop)
		return
	}

	q := r.URL.Query()
	date, err := time.Parse(domain.DateLayout, q.Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, domain.ErrInvalidDate)
		return
	}
	if v := q.Get("planting_date"); v != "" {
		planting, err := time.Parse(domain.DateLayout, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, domain.ErrInvalidDate)
			return
		}
		profile = profile.WithPlanting(planting)
	}
	planting, ok := profile.PlantingDate()
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, domain.ErrNoPlantingDate)
		return
	}

	var opts []domain.EnvOption
	for param, opt := range map[string]func(float64) domain.EnvOption{
		"wind_speed":    domain.WithWindSpeed,
		"rh_min":        domain.WithMinHumidity,
		"canopy_height": domain.WithCanopyHeight,
	} {
		raw := q.Get(param)
		if raw == "" {
			continue
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid "+param))
			return
		}
		if err := domain.CheckFactor(param, f); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		opts = append(opts, opt(f))
	}

	sharedobs.WriteJSON(w, http.StatusOK, kcResponse{
		Result:            profile.KcOn(date, opts...),
		Date:              date.Format(domain.DateLayout),
		PlantingDate:      planting.Format(domain.DateLayout),
		DaysSincePlanting: domain.DaysSincePlanting(planting, date),
	})
}

func writeError(w http.ResponseWriter, status int, err error) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": err.Error()})
}
