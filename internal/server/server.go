// Package server serves surfaces over HTTP: an interactive page with a ticker
// and mode selector, and a JSON/CSV API.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"ivsurface/internal/errors"
	"ivsurface/internal/models"
	"ivsurface/internal/quotes"
	"ivsurface/internal/render"
	"ivsurface/internal/resilience"
	"ivsurface/internal/surface"
)

// MaxResolution bounds the resolution a request may ask for.
const MaxResolution = 400

// QuoteSource supplies option chains; *quotes.Collector implements it.
type QuoteSource interface {
	FetchQuotes(ctx context.Context, ticker string, refresh bool) (*models.OptionChainSnapshot, error)
}

// Options configures a Server.
type Options struct {
	DefaultTicker string
	DefaultMode   surface.Mode
	Resolution    int
	Compress      bool
	Now           func() time.Time
	Logger        zerolog.Logger
}

// Server renders surfaces on demand.
type Server struct {
	source QuoteSource
	opts   Options
	logger zerolog.Logger
}

// Response wraps every API payload.
type Response[T any] struct {
	Data T    `json:"data"`
	Meta Meta `json:"meta"`
}

// Meta describes the data behind a response.
type Meta struct {
	Ticker     string    `json:"ticker"`
	Mode       string    `json:"mode,omitempty"`
	Resolution int       `json:"resolution,omitempty"`
	Contracts  int       `json:"contracts"`
	SpotPrice  float64   `json:"spot_price,omitempty"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// ErrorResponse is the body of a failed API request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type apiRoute struct {
	Path    string
	Method  string
	Handler http.HandlerFunc
}

// New creates a server reading quotes from source.
func New(source QuoteSource, opts Options) *Server {
	if opts.Resolution < 2 {
		opts.Resolution = surface.DefaultResolution
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Server{
		source: source,
		opts:   opts,
		logger: opts.Logger.With().Str("component", "server").Logger(),
	}
}

func (s *Server) routes() []apiRoute {
	return []apiRoute{
		{Path: "/surface/{ticker}", Method: http.MethodGet, Handler: s.handleSurface},
		{Path: "/quotes/{ticker}", Method: http.MethodGet, Handler: s.handleQuotes},
	}
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	for _, route := range s.routes() {
		api.HandleFunc(route.Path, route.Handler).Methods(route.Method)
	}

	var h http.Handler = r
	h = s.logRequests(h)
	if s.opts.Compress {
		h = ZstdMiddleware(h)
	}
	return h
}

// surfaceRequest is the parsed query of a surface request.
type surfaceRequest struct {
	ticker     string
	mode       surface.Mode
	resolution int
	refresh    bool
}

func (s *Server) parseSurfaceRequest(r *http.Request, ticker string) (surfaceRequest, error) {
	req := surfaceRequest{mode: s.opts.DefaultMode, resolution: s.opts.Resolution}
	q := r.URL.Query()

	t, err := quotes.NormalizeTicker(ticker)
	if err != nil {
		return req, err
	}
	req.ticker = t

	if m := q.Get("mode"); m != "" {
		if req.mode, err = surface.ParseMode(m); err != nil {
			return req, err
		}
	}
	if v := q.Get("resolution"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 2 || n > MaxResolution {
			return req, errors.NewValidationError("resolution", v, "must be an integer between 2 and "+strconv.Itoa(MaxResolution))
		}
		req.resolution = n
	}
	req.refresh, _ = strconv.ParseBool(q.Get("refresh"))
	return req, nil
}

func (s *Server) build(ctx context.Context, req surfaceRequest) (*render.Frame, *models.OptionChainSnapshot, error) {
	snap, err := s.source.FetchQuotes(ctx, req.ticker, req.refresh)
	if err != nil {
		return nil, nil, err
	}
	grid, err := surface.NewBuilder(surface.WithResolution(req.resolution)).Build(snap.Points, req.mode)
	if err != nil {
		return nil, snap, err
	}
	frame, err := render.NewFrame(grid, req.ticker, s.opts.Now())
	if err != nil {
		return nil, snap, err
	}
	return frame, snap, nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ticker := r.URL.Query().Get("ticker")
	if ticker == "" {
		ticker = s.opts.DefaultTicker
	}
	form := &render.Form{Action: "/", Ticker: ticker, Mode: strings.ToLower(s.opts.DefaultMode.String())}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if ticker == "" {
		_ = render.MessagePage(w, form, "Enter a ticker symbol.")
		return
	}

	req, err := s.parseSurfaceRequest(r, ticker)
	if err == nil {
		form.Ticker = req.ticker
		form.Mode = strings.ToLower(req.mode.String())
		var frame *render.Frame
		if frame, _, err = s.build(r.Context(), req); err == nil {
			if err := render.Page(w, frame, form); err != nil {
				s.logger.Error().Err(err).Msg("Failed to render page")
			}
			return
		}
	}

	status, _ := classify(err)
	w.WriteHeader(status)
	_ = render.MessagePage(w, form, describe(err))
}

func (s *Server) handleSurface(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseSurfaceRequest(r, mux.Vars(r)["ticker"])
	if err != nil {
		writeError(w, err)
		return
	}

	format := r.URL.Query().Get("format")
	switch format {
	case "", "json", "csv", "html":
	default:
		writeError(w, errors.NewValidationError("format", format, "must be json, csv or html"))
		return
	}

	frame, snap, err := s.build(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		err = render.GridCSV(w, frame)
	case "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		err = render.HTML(w, frame)
	default:
		err = writeJSON(w, http.StatusOK, Response[*render.Frame]{
			Data: frame,
			Meta: Meta{
				Ticker:     req.ticker,
				Mode:       strings.ToLower(req.mode.String()),
				Resolution: req.resolution,
				Contracts:  len(snap.Points),
				SpotPrice:  snap.SpotPrice,
				FetchedAt:  snap.FetchedAt,
			},
		})
	}
	if err != nil {
		s.logger.Error().Err(err).Str("ticker", req.ticker).Msg("Failed to write surface")
	}
}

func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	ticker, err := quotes.NormalizeTicker(mux.Vars(r)["ticker"])
	if err != nil {
		writeError(w, err)
		return
	}
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	snap, err := s.source.FetchQuotes(r.Context(), ticker, refresh)
	if err != nil {
		writeError(w, err)
		return
	}
	_ = writeJSON(w, http.StatusOK, Response[[]models.ContractPoint]{
		Data: snap.Points,
		Meta: Meta{
			Ticker:    snap.Ticker,
			Contracts: len(snap.Points),
			SpotPrice: snap.SpotPrice,
			FetchedAt: snap.FetchedAt,
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   s.opts.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	_ = writeJSON(w, status, ErrorResponse{Error: describe(err), Code: code})
}

// classify maps an error to an HTTP status and a stable error code.
func classify(err error) (int, string) {
	var validation *errors.ValidationError
	switch {
	case errors.IsNoData(err):
		return http.StatusNotFound, "no_data"
	case errors.Is(err, errors.ErrInvalidTicker), errors.As(err, &validation):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, errors.ErrDegenerateRange):
		return http.StatusUnprocessableEntity, "degenerate_range"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return http.StatusServiceUnavailable, "provider_unavailable"
	case errors.Is(err, errors.ErrRateLimited):
		return http.StatusServiceUnavailable, "rate_limited"
	case errors.Is(err, errors.ErrUnauthorized):
		return http.StatusBadGateway, "provider_rejected"
	case errors.Is(err, errors.ErrConnectionFailed), errors.Is(err, context.DeadlineExceeded):
		return http.StatusBadGateway, "provider_error"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func describe(err error) string {
	switch {
	case errors.IsNoData(err):
		return "No option data available: " + err.Error()
	case errors.Is(err, errors.ErrDegenerateRange):
		return "Cannot build a surface: " + err.Error()
	default:
		return err.Error()
	}
}
