package application

import (
	"compress/flate"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/domain"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/persistence"

	ngsi "github.com/iot-for-tillgenglighet/ngsi-ld-golang/pkg/ngsi-ld"
)

const (
	maxBodySize     int64  = 1 << 20
	requestIDHeader string = "X-Request-Id"
)

type RequestRouter struct {
	impl *chi.Mux
}

func (router *RequestRouter) addAPIHandlers(svc *Service, log logging.Logger) {
	router.Post("/api/v1/ingest", NewIngestHandler(svc, log))

	router.Get("/api/v1/actuators", NewListActuatorsHandler(svc))
	router.Get("/api/v1/actuator/history", NewActuatorHistoryHandler(svc, log, ""))
	router.Get("/api/v1/actuator/{device}", NewGetActuatorHandler(svc))
	router.Post("/api/v1/control/fan", NewLegacyControlHandler(svc, log, domain.Fan))
	router.Post("/api/v1/control/{device}", NewControlHandler(svc, log))
	router.Get("/api/v1/fan/history", NewActuatorHistoryHandler(svc, log, domain.Fan))

	router.Get("/api/v1/alerts", NewListAlertsHandler(svc))
	router.Get("/api/v1/readings", NewListReadingsHandler(svc))
	router.Get("/api/v1/latest", NewLatestHandler(svc))
	router.Get("/api/v1/health", NewHealthHandler(svc))
}

func (router *RequestRouter) addNGSIHandlers(contextRegistry ngsi.ContextRegistry) {
	router.Get("/ngsi-ld/v1/entities", ngsi.NewQueryEntitiesHandler(contextRegistry))
	router.Get("/ngsi-ld/v1/entities/{entity}", ngsi.NewRetrieveEntityHandler(contextRegistry))
	router.Patch("/ngsi-ld/v1/entities/{entity}/attrs/", ngsi.NewUpdateEntityAttributesHandler(contextRegistry))
}

//Get accepts a pattern that should be routed to the handlerFn on a GET request
func (router *RequestRouter) Get(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Get(pattern, handlerFn)
}

//Patch accepts a pattern that should be routed to the handlerFn on a PATCH request
func (router *RequestRouter) Patch(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Patch(pattern, handlerFn)
}

//Post accepts a pattern that should be routed to the handlerFn on a POST request
func (router *RequestRouter) Post(pattern string, handlerFn http.HandlerFunc) {
	router.impl.Post(pattern, handlerFn)
}

//Handle routes every method on pattern to handler
func (router *RequestRouter) Handle(pattern string, handler http.Handler) {
	router.impl.Handle(pattern, handler)
}

//requestID makes sure every request carries an X-Request-Id that is echoed
//back to the caller and picked up by middleware.RequestID
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func newRequestRouter() *RequestRouter {
	router := &RequestRouter{impl: chi.NewRouter()}

	router.impl.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowCredentials: true,
		Debug:            false,
	}).Handler)

	router.impl.Use(requestID)
	router.impl.Use(middleware.RequestID)
	router.impl.Use(middleware.Recoverer)
	router.impl.Use(middleware.NoCache)

	// Enable compression for json and ngsi-ld responses
	compressor := middleware.NewCompressor(flate.DefaultCompression, "application/json", "application/ld+json")
	router.impl.Use(compressor.Handler)
	router.impl.Use(middleware.Logger)

	return router
}

//Extras are the optional handlers mounted next to the API
type Extras struct {
	WebSocket http.Handler
	Metrics   http.Handler
}

//CreateRouter wires every API, NGSI-LD and supporting route into a single handler
func CreateRouter(log logging.Logger, svc *Service, extras Extras) http.Handler {
	router := newRequestRouter()

	router.addAPIHandlers(svc, log)
	router.addNGSIHandlers(createContextRegistry(log, svc))

	if extras.WebSocket != nil {
		router.Handle("/api/v1/ws", extras.WebSocket)
	}

	if extras.Metrics != nil {
		router.Handle("/metrics", extras.Metrics)
	}

	return router.impl
}

//CreateRouterAndStartServing serves handler on port until ctx is cancelled and
//then shuts the server down gracefully
func CreateRouterAndStartServing(ctx context.Context, log logging.Logger, port string, handler http.Handler) error {
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.Infof("Starting greenhouse-automation on port %s.", port)
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Infof("Shutting down http server ...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

type response struct {
	OK      bool   `json:"ok"`
	Durable *bool  `json:"durable,omitempty"`
	Error   string `json:"error,omitempty"`
}

type controlResponse struct {
	OK     bool                    `json:"ok"`
	Device domain.Device           `json:"device"`
	State  domain.ActuatorSnapshot `json:"state"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	bytes, err := json.Marshal(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(bytes)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, response{OK: false, Error: err.Error()})
}

//writeServiceError maps validation errors to 400 and everything else to 500
func writeServiceError(w http.ResponseWriter, log logging.Logger, err error) {
	if errors.Is(err, domain.ErrValidation) {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	log.Errorf("request failed: %s", err.Error())
	writeError(w, http.StatusInternalServerError, err)
}

//parseLimit reads the optional limit query parameter
func parseLimit(r *http.Request) (int, error) {
	value := r.URL.Query().Get("limit")
	if value == "" {
		return DefaultLimit, nil
	}

	limit, err := strconv.Atoi(value)
	if err != nil {
		return 0, domain.NewValidationError("limit", "must be an integer")
	}

	return ClampLimit(limit), nil
}

//NewIngestHandler accepts a single sensor reading
func NewIngestHandler(svc *Service, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
		if err != nil {
			writeError(w, http.StatusBadRequest, domain.NewValidationError("body", "could not be read"))
			return
		}

		reading, err := DecodeReading(body)
		if err != nil {
			writeServiceError(w, log, err)
			return
		}

		_, err = svc.Ingest(reading)
		if errors.Is(err, persistence.ErrNotDurable) {
			durable := false
			writeJSON(w, http.StatusAccepted, response{OK: true, Durable: &durable, Error: err.Error()})
			return
		} else if err != nil {
			writeServiceError(w, log, err)
			return
		}

		writeJSON(w, http.StatusOK, response{OK: true})
	}
}

//NewListActuatorsHandler returns the live state of every device
func NewListActuatorsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.ListActuators())
	}
}

//NewGetActuatorHandler returns the live state of the device named in the path
func NewGetActuatorHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot, err := svc.GetActuator(chi.URLParam(r, "device"))
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}

		writeJSON(w, http.StatusOK, snapshot)
	}
}

func control(w http.ResponseWriter, log logging.Logger, svc *Service, device, action string) {
	if _, err := domain.ParseDevice(device); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	snapshot, err := svc.SetActuator(device, action)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	writeJSON(w, http.StatusOK, controlResponse{OK: true, Device: snapshot.Device, State: snapshot})
}

func decodeControl(r *http.Request) (ControlPayload, error) {
	payload := ControlPayload{}

	err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&payload)
	if err != nil {
		return payload, domain.NewValidationError("body", "is not a valid command")
	}

	return payload, nil
}

//NewControlHandler performs a manual override on the device named in the path
func NewControlHandler(svc *Service, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := decodeControl(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		control(w, log, svc, chi.URLParam(r, "device"), payload.Action)
	}
}

//NewLegacyControlHandler accepts the action as a query parameter, falling
//back to a JSON body when there is none
func NewLegacyControlHandler(svc *Service, log logging.Logger, device domain.Device) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		action := r.URL.Query().Get("action")

		if action == "" {
			payload, err := decodeControl(r)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			action = payload.Action
		}

		control(w, log, svc, string(device), action)
	}
}

//NewActuatorHistoryHandler lists actuator events. A non empty device pins the
//handler to that device and ignores the device query parameter.
func NewActuatorHistoryHandler(svc *Service, log logging.Logger, device domain.Device) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := parseLimit(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		filter := string(device)
		if filter == "" {
			filter = r.URL.Query().Get("device")
		}

		events, err := svc.ListActuatorHistory(r.Context(), filter, limit)
		if err != nil {
			writeServiceError(w, log, err)
			return
		}

		if events == nil {
			events = []domain.ActuatorEvent{}
		}

		writeJSON(w, http.StatusOK, events)
	}
}

//NewListAlertsHandler lists the most recent alerts
func NewListAlertsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := parseLimit(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		alerts, _ := svc.ListAlerts(r.Context(), limit)
		if alerts == nil {
			alerts = []domain.Alert{}
		}

		writeJSON(w, http.StatusOK, alerts)
	}
}

//NewListReadingsHandler lists the most recent readings
func NewListReadingsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := parseLimit(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		readings, _ := svc.ListReadings(r.Context(), r.URL.Query().Get("sensor_id"), limit)
		if readings == nil {
			readings = []domain.Reading{}
		}

		writeJSON(w, http.StatusOK, readings)
	}
}

func NewLatestHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Latest(r.Context()))
	}
}

func NewHealthHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Health(r.Context()))
	}
}
