package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"inferd/internal/manager"
	"inferd/internal/prompt"
	"inferd/pkg/types"
)

// Service is the subset of the manager the HTTP layer drives.
type Service interface {
	ListModels() []types.Model
	Status() types.StatusResponse
	Ready() bool
	GenerateSync(ctx context.Context, user, screen string) (manager.Output, error)
	RemoteModels(ctx context.Context) ([]string, error)

	// Go schedules a lifecycle operation on the manager's worker pool.
	Go(name string, op func(context.Context) error) error
	Initialize(ctx context.Context) error
	ExplicitDownload(ctx context.Context) error
	SwitchTo(ctx context.Context, name string) error
	Unload(ctx context.Context) error
	Reload(ctx context.Context) error
}

// EventSource feeds /progress. Unsubscribe must close the channel.
type EventSource interface {
	Subscribe() (<-chan manager.Event, func())
}

// NewMux wires the HTTP routes. events may be nil, in which case /progress
// answers 503.
func NewMux(svc Service, events EventSource) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, req)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   corsAllowedOrigins,
			AllowedMethods:   corsAllowedMethods,
			AllowedHeaders:   corsAllowedHeaders,
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	r.Use(MetricsMiddleware)
	r.Use(inflightMiddleware)

	r.Get("/models", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, types.ModelsResponse{Models: svc.ListModels()})
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})

	r.Get("/remote/models", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := joinContexts(req.Context(), serverBaseCtx)
		defer cancel()
		ids, err := svc.RemoteModels(ctx)
		if err != nil {
			writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, types.RemoteModelsResponse{Models: ids})
	})

	r.Post("/generate", func(w http.ResponseWriter, req *http.Request) {
		handleGenerate(svc, w, req)
	})

	r.Post("/initialize", lifecycleHandler(svc, "initialize", svc.Initialize))
	r.Post("/download", lifecycleHandler(svc, "download", svc.ExplicitDownload))
	r.Post("/reload", lifecycleHandler(svc, "reload", svc.Reload))
	r.Post("/switch", func(w http.ResponseWriter, req *http.Request) {
		handleSwitch(svc, w, req)
	})
	r.Post("/unload", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := joinContexts(req.Context(), serverBaseCtx)
		defer cancel()
		start := time.Now()
		if err := svc.Unload(ctx); err != nil {
			logEnd(req, "unload", statusFor(err), start, err)
			writeServiceError(w, req, err)
			return
		}
		logEnd(req, "unload", http.StatusOK, start, nil)
		writeJSON(w, http.StatusOK, types.AcceptedResponse{Op: "unload", State: svc.Status().State})
	})

	r.Get("/progress", func(w http.ResponseWriter, req *http.Request) {
		if events == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "event stream disabled")
			return
		}
		serveProgress(events, w, req)
	})

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	MountSwagger(r)

	return r
}

// writeServiceError maps err to a status and writes the JSON error body.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusTooManyRequests {
		reason := "queue_full"
		if !manager.IsTooBusy(err) {
			reason = "lifecycle_busy"
		}
		IncrementBackpressure(reason)
		w.Header().Set("Retry-After", "1")
	}
	writeJSONError(w, status, err.Error())
}

// decodeJSON reads a size-limited JSON body into v. An empty body is allowed
// when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// @Summary Generate a reply
// @Description Runs one generation against the active backend and waits for the result.
// @Tags generate
// @Accept json
// @Produce json
// @Param request body types.GenerateRequest true "Prompt and optional screen context"
// @Success 200 {object} types.GenerateResponse
// @Failure 400 {object} types.ErrorResponse
// @Failure 429 {object} types.ErrorResponse
// @Failure 503 {object} types.ErrorResponse
// @Router /generate [post]
func handleGenerate(svc Service, w http.ResponseWriter, r *http.Request) {
	var body types.GenerateRequest
	if !decodeJSON(w, r, &body, false) {
		return
	}
	if strings.TrimSpace(body.Prompt) == "" {
		writeJSONError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	ctx, cancel := joinContexts(r.Context(), serverBaseCtx)
	defer cancel()
	if generateTimeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, generateTimeout)
		defer tcancel()
	}
	start := time.Now()
	logDebug(r, "generate start", map[string]any{"prompt_len": len(body.Prompt), "screen_len": len(body.ScreenContext)})
	out, err := svc.GenerateSync(ctx, body.Prompt, body.ScreenContext)
	if err != nil {
		if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
			// Client went away.
			logEnd(r, "generate", 499, start, err)
			return
		}
		logEnd(r, "generate", statusFor(err), start, err)
		writeServiceError(w, r, err)
		return
	}
	logEnd(r, "generate", http.StatusOK, start, nil)
	writeJSON(w, http.StatusOK, types.GenerateResponse{
		ID:        out.ID,
		Text:      prompt.StripCommands(out.Text),
		Commands:  toCommands(prompt.ParseCommands(out.Text)),
		ElapsedMS: out.Elapsed.Milliseconds(),
		Backend:   string(out.Backend),
		Model:     out.Model,
		Queued:    out.Queued,
	})
}

func toCommands(in []prompt.Command) []types.Command {
	if len(in) == 0 {
		return nil
	}
	out := make([]types.Command, len(in))
	for i, c := range in {
		out[i] = types.Command{Kind: c.Kind, Arg: c.Arg}
	}
	return out
}

// lifecycleHandler schedules op on the worker pool and answers 202. With
// ?wait=true the op runs inline and its error is returned.
func lifecycleHandler(svc Service, name string, op func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runLifecycle(svc, w, r, name, op)
	}
}

func runLifecycle(svc Service, w http.ResponseWriter, r *http.Request, name string, op func(context.Context) error) {
	start := time.Now()
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		ctx, cancel := joinContexts(r.Context(), serverBaseCtx)
		defer cancel()
		if err := op(ctx); err != nil {
			logEnd(r, name, statusFor(err), start, err)
			writeServiceError(w, r, err)
			return
		}
		logEnd(r, name, http.StatusOK, start, nil)
		writeJSON(w, http.StatusOK, types.AcceptedResponse{Op: name, State: svc.Status().State})
		return
	}
	if err := svc.Go(name, op); err != nil {
		logEnd(r, name, statusFor(err), start, err)
		writeServiceError(w, r, err)
		return
	}
	logEnd(r, name, http.StatusAccepted, start, nil)
	writeJSON(w, http.StatusAccepted, types.AcceptedResponse{Op: name, State: svc.Status().State})
}

// handleSwitch validates an optional model override before scheduling the
// switch. An empty model drops the override and follows the preference again.
func handleSwitch(svc Service, w http.ResponseWriter, r *http.Request) {
	var body types.SwitchRequest
	if !decodeJSON(w, r, &body, true) {
		return
	}
	name := strings.TrimSpace(body.Model)
	if name != "" && !hasModel(svc.ListModels(), name) {
		writeServiceError(w, r, manager.ErrModelNotFound(name))
		return
	}
	runLifecycle(svc, w, r, "switch", func(ctx context.Context) error { return svc.SwitchTo(ctx, name) })
}

func hasModel(models []types.Model, name string) bool {
	for _, m := range models {
		if m.Name == name {
			return true
		}
	}
	return false
}
