package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pixelgate/pixelgate/internal/domain"
	"github.com/pixelgate/pixelgate/internal/id"
	"github.com/pixelgate/pixelgate/internal/pipeline"
	"github.com/pixelgate/pixelgate/internal/provider"
	"github.com/pixelgate/pixelgate/internal/store"
	"github.com/pixelgate/pixelgate/internal/workerpool"
)

// ErrWorkerDispatchFailed marks a failure of the compute-pool handoff itself:
// submission refused, or the worker died before publishing a result. Pipeline
// errors, which describe the image, never wrap it.
var ErrWorkerDispatchFailed = errors.New("processing worker failed")

type imageProvider interface {
	Fetch(ctx context.Context, address string) (provider.Source, error)
	Modified(ctx context.Context, address string) (time.Time, bool)
}

type transformer interface {
	Process(req domain.TransformRequest, main []byte, watermarks []pipeline.WatermarkInput) (pipeline.EncodedOutput, error)
}

type taskSubmitter interface {
	Submit(task func()) error
}

type Server struct {
	logger       *log.Logger
	provider     imageProvider
	processor    transformer
	pool         taskSubmitter
	usageStore   store.UsageStore
	qualityRules []domain.QualityRule

	rateLimiter           RateLimiter
	rateLimitUserIDHeader string

	metrics *metrics
	tracer  trace.Tracer
	mux     *http.ServeMux
}

type Options struct {
	UsageStore            store.UsageStore
	QualityRules          []domain.QualityRule
	RateLimiter           RateLimiter
	RateLimitUserIDHeader string
}

func NewServer(logger *log.Logger, imgProvider imageProvider, processor transformer, pool taskSubmitter, opts Options) *Server {
	header := opts.RateLimitUserIDHeader
	if header == "" {
		header = "X-User-ID"
	}

	s := &Server{
		logger:                logger,
		provider:              imgProvider,
		processor:             processor,
		pool:                  pool,
		usageStore:            opts.UsageStore,
		qualityRules:          opts.QualityRules,
		rateLimiter:           opts.RateLimiter,
		rateLimitUserIDHeader: header,
		metrics:               newMetrics(),
		tracer:                otel.Tracer("pixelgate/api"),
		mux:                   http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.withRateLimit(s.withTracing(s.metrics.withHTTPMetrics(s.mux)))
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.metricsHandler()
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /image", s.handleImage)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleImage serves one transform: parse, freshness short-circuit, fetch
// main + watermarks, hand the buffers to the compute pool, stream the result.
// All I/O happens here on the request goroutine; the pool only touches
// pre-fetched bytes.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	startedAt := time.Now()
	requestID := id.New()
	ctx := r.Context()

	req, err := domain.ParseTransformRequest(r.URL.Query())
	if err != nil {
		s.writeTransformError(w, requestID, err)
		return
	}
	domain.ApplyQualityRules(&req, s.qualityRules)

	if modified, ok := s.notModifiedSince(ctx, r, req.ImageAddress); ok {
		w.Header().Set("Last-Modified", modified.UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusNotModified)
		return
	}

	src, err := s.fetchTimed(ctx, "main", req.ImageAddress)
	if err != nil {
		s.writeTransformError(w, requestID, fmt.Errorf("fetch main image: %w", err))
		return
	}

	watermarks := s.fetchWatermarks(ctx, requestID, req.Watermarks)

	out, err := s.dispatch(ctx, req, src.Data, watermarks)
	if err != nil {
		s.writeTransformError(w, requestID, err)
		return
	}

	w.Header().Set("Content-Type", out.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Data)))
	if !src.LastModified.IsZero() {
		w.Header().Set("Last-Modified", src.LastModified.UTC().Format(http.TimeFormat))
	}
	if _, err := w.Write(out.Data); err != nil {
		s.logger.Printf("response write failed request_id=%s err=%v", requestID, err)
	}

	s.recordUsage(requestID, req, len(src.Data), out, time.Since(startedAt))
}

// notModifiedSince reports whether the client's If-Modified-Since header is
// current for the address. It consults only locally known timestamps (cache
// mirror, local file, object metadata), so a hit skips the entire fetch and
// decode path.
func (s *Server) notModifiedSince(ctx context.Context, r *http.Request, address string) (time.Time, bool) {
	header := r.Header.Get("If-Modified-Since")
	if header == "" {
		return time.Time{}, false
	}
	since, err := http.ParseTime(header)
	if err != nil {
		return time.Time{}, false
	}

	modified, ok := s.provider.Modified(ctx, address)
	if !ok {
		return time.Time{}, false
	}
	// HTTP dates carry second precision.
	if modified.Truncate(time.Second).After(since) {
		return time.Time{}, false
	}
	return modified, true
}

// fetchWatermarks resolves all watermark addresses concurrently. Order in
// the returned slice follows the request order, never completion order, and
// a failed fetch drops only its own entry.
func (s *Server) fetchWatermarks(ctx context.Context, requestID string, specs []domain.Watermark) []pipeline.WatermarkInput {
	if len(specs) == 0 {
		return nil
	}

	fetched := make([]pipeline.WatermarkInput, len(specs))
	ok := make([]bool, len(specs))

	var wg sync.WaitGroup
	for i, spec := range specs {
		wg.Add(1)
		go func(i int, spec domain.Watermark) {
			defer wg.Done()
			src, err := s.fetchTimed(ctx, "watermark", spec.ImageAddress)
			if err != nil {
				s.logger.Printf("skipping unfetchable watermark request_id=%s address=%s err=%v", requestID, spec.ImageAddress, err)
				return
			}
			fetched[i] = pipeline.WatermarkInput{Spec: spec, Data: src.Data}
			ok[i] = true
		}(i, spec)
	}
	wg.Wait()

	inputs := make([]pipeline.WatermarkInput, 0, len(specs))
	for i := range fetched {
		if ok[i] {
			inputs = append(inputs, fetched[i])
		}
	}
	return inputs
}

func (s *Server) fetchTimed(ctx context.Context, kind, address string) (provider.Source, error) {
	start := time.Now()
	src, err := s.provider.Fetch(ctx, address)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.fetchDuration.WithLabelValues(kind, outcome).Observe(time.Since(start).Seconds())
	return src, err
}

type pipelineResult struct {
	out pipeline.EncodedOutput
	err error
}

// dispatch runs the pipeline on the compute pool and waits for its single
// result. The result channel is buffered so a worker finishing after the
// client disconnected can publish and exit without leaking.
func (s *Server) dispatch(ctx context.Context, req domain.TransformRequest, main []byte, watermarks []pipeline.WatermarkInput) (pipeline.EncodedOutput, error) {
	ctx, span := s.tracer.Start(ctx, "pipeline.process")
	span.SetAttributes(
		attribute.String("image.format", string(req.Format)),
		attribute.Int("image.watermarks", len(watermarks)),
		attribute.Int("image.input_bytes", len(main)),
	)
	defer span.End()

	results := make(chan pipelineResult, 1)

	err := s.pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				results <- pipelineResult{err: fmt.Errorf("%w: pipeline panic: %v", ErrWorkerDispatchFailed, r)}
			}
		}()
		out, err := s.processor.Process(req, main, watermarks)
		results <- pipelineResult{out: out, err: err}
	})
	if err != nil {
		if errors.Is(err, workerpool.ErrSaturated) {
			s.metrics.poolSaturated.Inc()
		}
		span.RecordError(err)
		return pipeline.EncodedOutput{}, fmt.Errorf("%w: %w", ErrWorkerDispatchFailed, err)
	}

	select {
	case res := <-results:
		if res.err != nil {
			span.RecordError(res.err)
		}
		return res.out, res.err
	case <-ctx.Done():
		// The in-flight transform finishes on its own and its buffered
		// result is dropped with the channel.
		return pipeline.EncodedOutput{}, fmt.Errorf("%w: %v", ErrWorkerDispatchFailed, ctx.Err())
	}
}

// recordUsage writes accounting after the response is already on the wire;
// failures are logged and never affect the request outcome.
func (s *Server) recordUsage(requestID string, req domain.TransformRequest, inputBytes int, out pipeline.EncodedOutput, elapsed time.Duration) {
	format := string(out.Format)
	s.metrics.inputBytes.WithLabelValues(format).Observe(float64(inputBytes))
	s.metrics.outputBytes.WithLabelValues(format).Observe(float64(len(out.Data)))
	s.metrics.pixelsProcessed.Add(float64(out.Width * out.Height))

	if s.usageStore == nil {
		return
	}

	computeTimeMS := elapsed.Milliseconds()
	if computeTimeMS < 1 {
		computeTimeMS = 1
	}

	usage := domain.UsageLog{
		RequestID:       requestID,
		ImageAddress:    req.ImageAddress,
		Format:          out.Format,
		InputBytes:      int64(inputBytes),
		OutputBytes:     int64(len(out.Data)),
		PixelsProcessed: int64(out.Width) * int64(out.Height),
		ComputeTimeMS:   computeTimeMS,
		CreatedAt:       time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.usageStore.CreateUsageLog(ctx, usage); err != nil {
		s.logger.Printf("usage log write failed request_id=%s err=%v", requestID, err)
	}
}

// writeTransformError maps an error to its HTTP status and a JSON body. The
// body carries a stable generic message; full detail, including engine
// output, goes to the log only.
func (s *Server) writeTransformError(w http.ResponseWriter, requestID string, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	var statusErr *provider.StatusError
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		status = http.StatusBadRequest
		message = "invalid request parameters"
	case errors.Is(err, provider.ErrInvalidAddress):
		status = http.StatusBadRequest
		message = "invalid image address"
	case errors.As(err, &statusErr):
		// Mirror upstream client errors; anything else from upstream is a
		// bad gateway from the caller's point of view.
		if statusErr.Code >= 400 && statusErr.Code < 500 {
			status = statusErr.Code
		} else {
			status = http.StatusBadGateway
		}
		message = fmt.Sprintf("image source returned status %d", statusErr.Code)
	case errors.Is(err, provider.ErrFetchTimeout):
		status = http.StatusGatewayTimeout
		message = "image source timed out"
	case errors.Is(err, provider.ErrDownloadFailed):
		status = http.StatusBadRequest
		message = "image could not be retrieved"
	case errors.Is(err, pipeline.ErrDecodeFailed):
		status = http.StatusBadRequest
		message = "image could not be decoded"
	case errors.Is(err, pipeline.ErrEncodeFailed):
		status = http.StatusBadRequest
		message = "image could not be encoded with the requested parameters"
	case errors.Is(err, workerpool.ErrSaturated):
		status = http.StatusServiceUnavailable
		message = "server is overloaded, retry later"
	case errors.Is(err, ErrWorkerDispatchFailed):
		status = http.StatusInternalServerError
		message = "processing worker failed"
	}

	s.logger.Printf("request failed request_id=%s status=%d err=%v", requestID, status, err)
	writeJSON(w, status, map[string]string{
		"error":      message,
		"request_id": requestID,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
