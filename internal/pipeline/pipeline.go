// Package pipeline chains the processing stages for one uploaded document:
// extract, normalize, generate. Each request is independent; the pipeline
// keeps no cross-request state beyond its metrics.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cargodocs/cargodocs/internal/docgen"
	"github.com/cargodocs/cargodocs/internal/fileutils"
	"github.com/cargodocs/cargodocs/internal/history"
	"github.com/cargodocs/cargodocs/internal/normalize"
)

// Stage sentinels let callers map failures to responses without inspecting
// stage internals.
var (
	ErrExtractStage   = errors.New("extract stage failed")
	ErrNormalizeStage = errors.New("normalize stage failed")
	ErrGenerateStage  = errors.New("generate stage failed")
)

// Extractor produces structured document data from a staged PDF.
type Extractor interface {
	Extract(ctx context.Context, pdfPath, workDir string) ([]byte, error)
}

// Normalizer converts structured data into the target schema.
type Normalizer interface {
	Normalize(ctx context.Context, structuredData []byte) (normalize.Result, error)
}

// Generator produces the output document from normalized data.
type Generator interface {
	Generate(ctx context.Context, templatePath string, payload []byte, workDir string) (docgen.Result, error)
}

// Recorder stores job outcomes.
type Recorder interface {
	Record(ctx context.Context, job history.Job) error
}

// Request is one document to process.
type Request struct {
	JobID        string
	DocType      string
	Filename     string
	TemplatePath string
	Pages        int
	PDF          []byte
}

// Result is the generated document for a processed request.
type Result struct {
	Data        []byte
	Filename    string
	ContentType string

	MeanConfidence float64
}

// Pipeline processes uploaded documents sequentially per request.
type Pipeline struct {
	workDir string

	extractor  Extractor
	normalizer Normalizer
	generator  Generator
	recorder   Recorder

	jobsTotal     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec

	log *slog.Logger
}

type options struct {
	Logger *slog.Logger
}

// Options represents an optional function to override Pipeline default values.
type Options func(*options)

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Options {
	return func(o *options) {
		o.Logger = log
	}
}

// New creates a Pipeline. recorder may be nil when no history database is
// configured.
func New(workDir string, extractor Extractor, normalizer Normalizer, generator Generator, recorder Recorder, reg prometheus.Registerer, args ...Options) (*Pipeline, error) {
	if workDir == "" {
		return nil, fmt.Errorf("workDir must be set")
	}
	if err := os.MkdirAll(workDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create workDir: %v", err)
	}

	opts := options{
		Logger: slog.Default(),
	}
	for _, opt := range args {
		opt(&opts)
	}

	jobsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_jobs_total",
		Help: "Number of processed documents by document type and status.",
	}, []string{"doctype", "status"})
	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_stage_duration_seconds",
		Help:    "Tracks the latencies of the pipeline stages.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
	}, []string{"stage"})

	if err := reg.Register(jobsTotal); err != nil {
		return nil, fmt.Errorf("failed to register jobs counter: %v", err)
	}
	if err := reg.Register(stageDuration); err != nil {
		return nil, fmt.Errorf("failed to register stage duration histogram: %v", err)
	}

	return &Pipeline{
		workDir:       workDir,
		extractor:     extractor,
		normalizer:    normalizer,
		generator:     generator,
		recorder:      recorder,
		jobsTotal:     jobsTotal,
		stageDuration: stageDuration,
		log:           opts.Logger,
	}, nil
}

// Process runs the three stages for one request and returns the generated
// document. The per-job staging directory is removed on success and kept on
// failure for inspection.
func (p *Pipeline) Process(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	jobDir := filepath.Join(p.workDir, req.JobID)
	if err := os.MkdirAll(jobDir, 0700); err != nil {
		return Result{}, fmt.Errorf("failed to create job directory: %v", err)
	}

	result, err := p.process(ctx, req, jobDir)

	job := history.Job{
		ID:       req.JobID,
		DocType:  req.DocType,
		Filename: req.Filename,
		Pages:    req.Pages,
		Duration: time.Since(start),
	}
	if err != nil {
		job.Status = history.StatusFailed
		job.Detail = err.Error()
		p.jobsTotal.WithLabelValues(req.DocType, job.Status).Inc()
		p.record(ctx, job)
		p.log.Info("Keeping job directory for inspection", "job_id", req.JobID, "dir", jobDir)
		return Result{}, err
	}

	job.Status = history.StatusDone
	job.MeanConfidence = result.MeanConfidence
	p.jobsTotal.WithLabelValues(req.DocType, job.Status).Inc()
	p.record(ctx, job)

	if err := os.RemoveAll(jobDir); err != nil {
		p.log.Warn("Failed to remove job directory", "job_id", req.JobID, "err", err)
	}
	return result, nil
}

func (p *Pipeline) process(ctx context.Context, req Request, jobDir string) (Result, error) {
	pdfPath := filepath.Join(jobDir, "input.pdf")
	if err := fileutils.AtomicWrite(pdfPath, req.PDF); err != nil {
		return Result{}, fmt.Errorf("staging upload: %w", err)
	}

	structured, err := p.timed("extract", func() ([]byte, error) {
		return p.extractor.Extract(ctx, pdfPath, jobDir)
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrExtractStage, err)
	}
	if err := fileutils.AtomicWrite(filepath.Join(jobDir, "structuredData.json"), structured); err != nil {
		p.log.Warn("Failed to stage structured data", "job_id", req.JobID, "err", err)
	}

	var normResult normalize.Result
	payload, err := p.timed("normalize", func() ([]byte, error) {
		var err error
		normResult, err = p.normalizer.Normalize(ctx, structured)
		if err != nil {
			return nil, err
		}
		return normResult.Payload()
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrNormalizeStage, err)
	}

	var genResult docgen.Result
	_, err = p.timed("generate", func() ([]byte, error) {
		var err error
		genResult, err = p.generator.Generate(ctx, req.TemplatePath, payload, jobDir)
		return nil, err
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrGenerateStage, err)
	}

	data, err := os.ReadFile(genResult.Path)
	if err != nil {
		return Result{}, fmt.Errorf("%w: reading generated document: %v", ErrGenerateStage, err)
	}

	return Result{
		Data:           data,
		Filename:       genResult.Filename,
		ContentType:    genResult.ContentType,
		MeanConfidence: normResult.MeanConfidence(),
	}, nil
}

func (p *Pipeline) timed(stage string, fn func() ([]byte, error)) ([]byte, error) {
	start := time.Now()
	out, err := fn()
	p.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	return out, err
}

// record stores the job outcome best-effort. History being unavailable must
// never fail a request.
func (p *Pipeline) record(ctx context.Context, job history.Job) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.Record(ctx, job); err != nil {
		p.log.Error("Failed to record job history", "job_id", job.ID, "err", err)
	}
}
