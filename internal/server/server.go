package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/copyleftdev/tourga/internal/config"
	"github.com/copyleftdev/tourga/internal/logging"
	"github.com/copyleftdev/tourga/internal/metrics"
	"github.com/copyleftdev/tourga/internal/optimization"
	"github.com/copyleftdev/tourga/internal/optimization/genetic"
	"github.com/copyleftdev/tourga/internal/optimization/geography"
	"github.com/copyleftdev/tourga/internal/optimization/parallel"
	"github.com/copyleftdev/tourga/internal/render"
)

// Logger defines the logging interface used by the server
// This allows us to be flexible with our logging implementation
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// Search statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
)

var (
	errSearchNotFound = errors.New("search not found")
	errInvalidParams  = errors.New("invalid parameters")
)

// SolveParams are the parameters of a search. Unset fields fall back to the
// evolution defaults of the server configuration.
type SolveParams struct {
	NumLocations   *int   `json:"num_locations,omitempty"`
	PopulationSize *int   `json:"population_size,omitempty"`
	Generations    *int   `json:"generations,omitempty"`
	EliteAmount    *int   `json:"elite_amount,omitempty"`
	Workers        *int   `json:"workers,omitempty"`
	Seed           *int64 `json:"seed,omitempty"`
}

// SearchState tracks one asynchronous search.
// Fields are guarded by the server's searches lock.
type SearchState struct {
	ID          string
	Status      string
	StartTime   time.Time
	EndTime     *time.Time
	LastUpdated time.Time
	Config      optimization.Config
	Workers     int
	Geography   *geography.Geography
	Coordinator *parallel.Coordinator
	Result      *optimization.Result
	Err         string
	CancelFunc  context.CancelFunc
}

// Server implements the HTTP and JSON-RPC server for the tour search service.
// It manages search jobs and provides endpoints to start, monitor, and cancel them.
type Server struct {
	cfg     *config.Config
	logger  Logger
	engine  *zap.Logger
	metrics *metrics.Metrics

	searches   map[string]*SearchState
	searchesMu sync.RWMutex
	wg         sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithEngineLogger sets the zap logger handed to search workers.
func WithEngineLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.engine = logger
		}
	}
}

// WithMetrics sets the collectors updated by search workers.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a new server instance with the given config and logger
// The logger parameter accepts any type that implements the Logger interface
func NewServer(cfg *config.Config, logger Logger, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		engine:   zap.NewNop(),
		searches: make(map[string]*SearchState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) RegisterRoutes(r chi.Router) {
	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/solve", s.handleSolve)
		r.Get("/status/{id}", s.handleStatus)
		r.Get("/solve/{id}/tour.png", s.handleTourImage)
		r.Delete("/solve/{id}", s.handleCancel)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request struct {
		JSONRPC string        `json:"jsonrpc"`
		ID      interface{}   `json:"id"`
		Method  string        `json:"method"`
		Params  []interface{} `json:"params,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, codeParseError, "Parse error", nil)
		return
	}

	if request.JSONRPC != "2.0" {
		s.respondWithError(w, codeInvalidRequest, "Invalid Request", request.ID)
		return
	}

	var result interface{}
	var err error

	switch request.Method {
	case "search.start":
		var params SolveParams
		if params, err = solveParamsFrom(request.Params); err == nil {
			result, err = s.startSearch(params)
		}
	case "search.status":
		var id string
		if id, err = searchIDFrom(request.Params); err == nil {
			result, err = s.searchStatus(id)
		}
	case "search.cancel":
		var id string
		if id, err = searchIDFrom(request.Params); err == nil {
			err = s.cancelSearch(id)
			result = map[string]string{"search_id": id, "status": StatusCancelled}
		}
	default:
		s.respondWithError(w, codeMethodNotFound, "Method not found", request.ID)
		return
	}

	if err != nil {
		code := codeServerError
		if errors.Is(err, errInvalidParams) || optimization.IsConfigError(err) {
			code = codeInvalidParams
		}
		s.respondWithError(w, code, err.Error(), request.ID)
		return
	}

	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

// solveParamsFrom decodes the first positional parameter into SolveParams.
// Expected parameters: [{"num_locations": 25, "workers": 4}]
func solveParamsFrom(params []interface{}) (SolveParams, error) {
	var out SolveParams
	if len(params) == 0 {
		return out, nil
	}
	raw, err := json.Marshal(params[0])
	if err != nil {
		return out, fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%w: expected object: %v", errInvalidParams, err)
	}
	return out, nil
}

// searchIDFrom extracts search_id from the first positional parameter.
// Expected parameters: [{"search_id": "..."}]
func searchIDFrom(params []interface{}) (string, error) {
	if len(params) == 0 {
		return "", fmt.Errorf("%w: missing required parameters", errInvalidParams)
	}
	paramMap, ok := params[0].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("%w: expected object", errInvalidParams)
	}
	id, ok := paramMap["search_id"].(string)
	if !ok || id == "" {
		return "", fmt.Errorf("%w: search_id is required", errInvalidParams)
	}
	return id, nil
}

// searchConfig merges params over the evolution defaults.
func (s *Server) searchConfig(params SolveParams) (optimization.Config, int, error) {
	cfg := s.cfg.Evolution.OptimizerConfig()
	workers := s.cfg.Evolution.Workers

	if params.NumLocations != nil {
		cfg.NumLocations = *params.NumLocations
	}
	if params.PopulationSize != nil {
		cfg.PopulationSize = *params.PopulationSize
	}
	if params.Generations != nil {
		cfg.NumGenerations = *params.Generations
	}
	if params.EliteAmount != nil {
		cfg.EliteAmount = *params.EliteAmount
	}
	if params.Seed != nil {
		cfg.RandomSeed = *params.Seed
	}
	if params.Workers != nil {
		workers = *params.Workers
	}

	workers, err := parallel.ResolveWorkers(workers)
	if err != nil {
		return cfg, 0, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, 0, err
	}
	return cfg, workers, nil
}

// startSearch generates a map, validates the search and runs it in the
// background.
// Returns: {"search_id": "...", "status": "pending"}
func (s *Server) startSearch(params SolveParams) (map[string]interface{}, error) {
	cfg, workers, err := s.searchConfig(params)
	if err != nil {
		return nil, err
	}

	seed := cfg.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	geo, err := geography.Generate(rand.New(rand.NewSource(seed)), geography.GenerateOptions{
		Width:        s.cfg.Map.Width,
		Height:       s.cfg.Map.Height,
		NumLocations: cfg.NumLocations,
		AvoidCenter:  s.cfg.Map.AvoidCenter,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidParams, err)
	}

	id := uuid.NewString()
	coordinator, err := parallel.NewCoordinator(geo, cfg, workers,
		parallel.WithLogger(s.engine.With(zap.String("search_id", id))),
		parallel.WithMetrics(s.metrics),
	)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	state := &SearchState{
		ID:          id,
		Status:      StatusPending,
		StartTime:   now,
		LastUpdated: now,
		Config:      cfg,
		Workers:     workers,
		Geography:   geo,
		Coordinator: coordinator,
		CancelFunc:  cancel,
	}

	s.searchesMu.Lock()
	s.searches[id] = state
	s.searchesMu.Unlock()

	s.logger.Info("Search started", map[string]interface{}{
		"search_id":   id,
		"locations":   cfg.NumLocations,
		"population":  cfg.PopulationSize,
		"generations": cfg.NumGenerations,
		"workers":     workers,
	})

	s.wg.Add(1)
	go s.runSearch(ctx, state)

	return map[string]interface{}{
		"search_id": id,
		"status":    StatusPending,
	}, nil
}

// runSearch executes the search in a goroutine
func (s *Server) runSearch(ctx context.Context, state *SearchState) {
	defer s.wg.Done()
	defer state.CancelFunc()

	s.searchesMu.Lock()
	if state.Status == StatusPending {
		state.Status = StatusRunning
		state.LastUpdated = time.Now()
	}
	s.searchesMu.Unlock()

	result, err := state.Coordinator.Solve(ctx)

	s.searchesMu.Lock()
	defer s.searchesMu.Unlock()

	now := time.Now()
	state.EndTime = &now
	state.LastUpdated = now
	state.Result = result

	switch {
	case err != nil:
		state.Status = StatusFailed
		state.Err = err.Error()
		s.logger.Error("Search failed", map[string]interface{}{
			"search_id": state.ID,
			"error":     err.Error(),
		})
	case result.State == optimization.StateCancelled || state.Status == StatusCancelled:
		state.Status = StatusCancelled
	default:
		state.Status = StatusCompleted
		s.logger.Info("Search completed", map[string]interface{}{
			"search_id":     state.ID,
			"state":         result.State.String(),
			"best_distance": result.BestDistance,
			"generations":   result.Generations,
		})
	}
}

// searchStatus returns the current status and best route of a search.
func (s *Server) searchStatus(id string) (map[string]interface{}, error) {
	s.searchesMu.RLock()
	state, exists := s.searches[id]
	if !exists {
		s.searchesMu.RUnlock()
		return nil, errSearchNotFound
	}
	status := state.Status
	result := state.Result
	response := map[string]interface{}{
		"search_id":   state.ID,
		"status":      status,
		"workers":     state.Workers,
		"locations":   state.Geography.Len(),
		"start_time":  state.StartTime.Format(time.RFC3339),
		"last_update": state.LastUpdated.Format(time.RFC3339),
	}
	if state.EndTime != nil {
		response["end_time"] = state.EndTime.Format(time.RFC3339)
	}
	if state.Err != "" {
		response["error"] = state.Err
	}
	budget := state.Config.NumGenerations
	geo := state.Geography
	coordinator := state.Coordinator
	s.searchesMu.RUnlock()

	generation := coordinator.Generation()
	history := coordinator.History()
	best := coordinator.Best()
	if result != nil {
		generation = result.Generations
		history = result.History
		response["state"] = result.State.String()
		response["invalid_candidates"] = result.InvalidCandidates
	}

	progress := 1.0
	if budget > 0 {
		progress = min(float64(generation)/float64(budget), 1)
	}
	response["generation"] = generation
	response["progress"] = progress
	response["history"] = history

	if best != nil {
		response["best_distance"] = best.BestDistance
		response["best_route"] = genetic.NewCandidate(geo, best.BestSequence).Names()
	}
	return response, nil
}

// cancelSearch cancels a running search. Workers stop at their next
// generation boundary.
func (s *Server) cancelSearch(id string) error {
	s.searchesMu.Lock()
	defer s.searchesMu.Unlock()

	state, exists := s.searches[id]
	if !exists {
		return errSearchNotFound
	}

	switch state.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return fmt.Errorf("cannot cancel search with status: %s", state.Status)
	}

	if state.CancelFunc != nil {
		state.CancelFunc()
	}
	state.Status = StatusCancelled
	state.LastUpdated = time.Now()

	s.logger.Info("Search cancelled", map[string]interface{}{
		"search_id": id,
	})
	return nil
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Warn("RPC error", map[string]interface{}{
		"code":    code,
		"message": message,
	})

	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// Close cancels every running search and waits for the workers to stop.
func (s *Server) Close() error {
	s.searchesMu.Lock()
	for _, search := range s.searches {
		if search.CancelFunc != nil {
			search.CancelFunc()
		}
	}
	s.searchesMu.Unlock()

	s.wg.Wait()
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// handleSolve handles POST /api/v1/solve
func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	var params SolveParams
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error": fmt.Sprintf("Invalid request body: %v", err),
			})
			return
		}
	}

	result, err := s.startSearch(params)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, errInvalidParams) || optimization.IsConfigError(err) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]interface{}{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, result)
}

// handleStatus handles GET /api/v1/status/{id}
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	result, err := s.searchStatus(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleTourImage handles GET /api/v1/solve/{id}/tour.png
func (s *Server) handleTourImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.searchesMu.RLock()
	state, exists := s.searches[id]
	var geo *geography.Geography
	var coordinator *parallel.Coordinator
	if exists {
		geo, coordinator = state.Geography, state.Coordinator
	}
	s.searchesMu.RUnlock()

	if !exists {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": errSearchNotFound.Error()})
		return
	}

	best := coordinator.Best()
	if best == nil {
		writeJSON(w, http.StatusConflict, map[string]interface{}{"error": "no tour evaluated yet"})
		return
	}

	tour := genetic.NewCandidate(geo, best.BestSequence).Tour()
	opts := render.DefaultOptions()
	opts.MapWidth, opts.MapHeight = float64(s.cfg.Map.Width), float64(s.cfg.Map.Height)

	w.Header().Set("Content-Type", "image/png")
	if err := render.Tour(w, geo, tour, best.BestDistance, opts); err != nil {
		s.logger.Error("Rendering tour failed", map[string]interface{}{
			"search_id": id,
			"error":     err.Error(),
		})
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// handleCancel handles DELETE /api/v1/solve/{id}
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.cancelSearch(id); err != nil {
		status := http.StatusConflict
		if errors.Is(err, errSearchNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]interface{}{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"search_id": id,
		"status":    "cancellation requested",
	})
}
