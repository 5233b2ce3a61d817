package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"salesetl/internal/config"
	"salesetl/internal/database"
	"salesetl/internal/extract"
	"salesetl/internal/formatter"
	"salesetl/internal/load"
	"salesetl/internal/logger"
	"salesetl/internal/metrics"
	"salesetl/internal/normalizer"
	"salesetl/internal/table"
	"salesetl/internal/validator"
	"salesetl/pkg/utils"
)

// Orchestrator errors.
var (
	ErrUnknownSource = errors.New("unknown source")
	ErrNoData        = errors.New("no data extracted")
)

// Task names, in execution order.
const (
	TaskExtract     = "extract"
	TaskTransform   = "transform"
	TaskMetrics     = "calculate_metrics"
	TaskValidate    = "validate"
	TaskConsistency = "check_consistency"
	TaskLoad        = "load_to_db"
	TaskExport      = "export_to_files"
	TaskReport      = "generate_report"
	TaskFinish      = "finish"
)

// SourceResult is what one run over a single source produced.
type SourceResult struct {
	Started     time.Time
	Metrics     *table.Collection
	Raw         *table.Batch
	Canonical   normalizer.Canonical
	Consistency validator.Consistency
	RunID       string
	Source      string
	ReportPath  string
	Validation  validator.Results
	Outputs     []string
	Warnings    []string
	Duration    time.Duration
	RowsLoaded  int
	Skipped     bool
}

// Options tune a run beyond the configuration file.
type Options struct {
	// DB is the connection used by sql sources and the database sink.
	DB *sql.DB
	// Report forces a markdown report even when output.report is off.
	Report bool
}

// Orchestrator runs the stages for each source, one source at a time.
type Orchestrator struct {
	cfg       *config.Config
	log       *logger.Logger
	db        *sql.DB
	processor *normalizer.Processor
	engine    *metrics.Engine
	validator *validator.Validator
	strings   *utils.StringHelper
	extractor func(src config.SourceConfig) (extract.Extractor, error)
	newID     func() string
	now       func() time.Time
	report    bool
}

// NewOrchestrator wires the components from cfg.
func NewOrchestrator(cfg *config.Config, log *logger.Logger, opts Options) *Orchestrator {
	th := cfg.Thresholds()

	o := &Orchestrator{
		cfg:       cfg,
		log:       log,
		db:        opts.DB,
		processor: normalizer.NewProcessor(log),
		engine:    metrics.NewEngine(log, th),
		validator: validator.NewValidator(log, th),
		strings:   utils.NewStringHelper(),
		newID:     uuid.NewString,
		now:       time.Now,
		report:    opts.Report || cfg.Pipeline.Output.Report,
	}

	o.extractor = func(src config.SourceConfig) (extract.Extractor, error) {
		return extract.New(src, o.db, cfg.Pipeline.Retry, log)
	}

	return o
}

// Run processes the named sources, or every enabled source when names is
// empty. A failing source does not stop the others; failures are joined.
func (o *Orchestrator) Run(ctx context.Context, names ...string) ([]*SourceResult, error) {
	sources := o.cfg.GetEnabledSources()

	if len(names) > 0 {
		sources = sources[:0:0]

		for _, name := range names {
			src, ok := o.cfg.GetSource(name)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
			}

			sources = append(sources, src)
		}
	}

	var (
		results []*SourceResult
		errs    []error
	)

	for _, src := range sources {
		res, err := o.RunSource(ctx, src)
		results = append(results, res)

		if err != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", src.Name, err))
		}

		if ctx.Err() != nil {
			break
		}
	}

	return results, errors.Join(errs...)
}

// RunSource runs every stage for src. A source that yields no rows is
// reported as skipped, not as a failure.
func (o *Orchestrator) RunSource(ctx context.Context, src config.SourceConfig) (*SourceResult, error) {
	res := &SourceResult{Source: src.Name, RunID: o.newID(), Started: o.now()}
	log := o.log.With("source", src.Name, "run_id", res.RunID)

	log.Info("running pipeline", "type", src.Type)

	var sinkErrs []error

	s := NewScheduler(log)
	tasks := []struct {
		name string
		fn   TaskFunc
		deps []string
	}{
		{TaskExtract, o.extractTask(src, res), nil},
		{TaskTransform, o.transformTask(log, res), []string{TaskExtract}},
		{TaskMetrics, o.metricsTask(log, res), []string{TaskTransform}},
		{TaskValidate, o.validateTask(res), []string{TaskMetrics}},
		{TaskConsistency, o.consistencyTask(res), []string{TaskValidate}},
		{TaskLoad, contain(log, &sinkErrs, TaskLoad, o.loadTask(res)), []string{TaskConsistency}},
		{TaskExport, contain(log, &sinkErrs, TaskExport, o.exportTask(res)), []string{TaskConsistency}},
		{TaskReport, o.reportTask(res), []string{TaskLoad, TaskExport}},
		{TaskFinish, func(context.Context) error { return errors.Join(sinkErrs...) }, []string{TaskReport}},
	}

	for _, t := range tasks {
		if err := s.Add(t.name, t.fn, t.deps...); err != nil {
			return res, err
		}
	}

	err := s.Run(ctx, TaskFinish)
	res.Duration = o.now().Sub(res.Started)

	if errors.Is(err, ErrNoData) {
		log.Warn("no data extracted, skipping source")

		res.Skipped = true

		return res, nil
	}

	if err != nil {
		log.Error("pipeline failed", "error", err)
		return res, err
	}

	log.Info("pipeline complete",
		"rows_in", res.Raw.Len(),
		"rows_out", res.Canonical.Sales.Len(),
		"outputs", len(res.Outputs),
		"warnings", len(res.Warnings),
		"duration", res.Duration,
	)

	return res, nil
}

func (o *Orchestrator) extractTask(src config.SourceConfig, res *SourceResult) TaskFunc {
	return func(ctx context.Context) error {
		ext, err := o.extractor(src)
		if err != nil {
			return err
		}

		raw, err := ext.Extract(ctx)
		if err != nil {
			return err
		}

		if raw.Empty() {
			return ErrNoData
		}

		res.Raw = raw

		return nil
	}
}

func (o *Orchestrator) transformTask(log *logger.Logger, res *SourceResult) TaskFunc {
	return func(context.Context) error {
		canonical, err := o.processor.Process(res.Raw)
		if err != nil && canonical.Sales == nil {
			return err
		}

		if err != nil {
			res.Warnings = append(res.Warnings, err.Error())
			log.Warn("partial transformation", "error", err)
		}

		res.Canonical = canonical

		return nil
	}
}

func (o *Orchestrator) metricsTask(log *logger.Logger, res *SourceResult) TaskFunc {
	return func(context.Context) error {
		c := res.Canonical

		m, err := o.engine.Calculate(c.Sales, c.Products, c.Customers)
		if err != nil {
			res.Warnings = append(res.Warnings, err.Error())
			log.Warn("some metrics were not calculated", "error", err)
		}

		res.Metrics = m

		return nil
	}
}

func (o *Orchestrator) validateTask(res *SourceResult) TaskFunc {
	return func(context.Context) error {
		c := table.NewCollection()

		for _, m := range []struct {
			name string
			b    *table.Batch
		}{
			{"sales", res.Canonical.Sales},
			{"products", res.Canonical.Products},
			{"customers", res.Canonical.Customers},
		} {
			if m.b != nil {
				c.Put(m.name, m.b)
			}
		}

		for _, name := range res.Metrics.Names() {
			b, _ := res.Metrics.Get(name)
			c.Put(name, b)
		}

		res.Validation = o.validator.ValidateCollection(c)

		for _, r := range res.Validation {
			if r.Err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", r.Name, r.Err))
			}
		}

		return nil
	}
}

func (o *Orchestrator) consistencyTask(res *SourceResult) TaskFunc {
	return func(context.Context) error {
		c := res.Validation.Collection()

		sales, _ := c.Get("sales")
		products, _ := c.Get("products")
		customers, _ := c.Get("customers")

		res.Consistency = o.validator.ValidateConsistency(sales, products, customers)

		return nil
	}
}

// outputs returns the validated canonical batches followed by the validated
// metric batches.
func (res *SourceResult) outputs() *table.Collection {
	return res.Validation.Collection()
}

// validatedMetrics returns the validated metric batches in metric order.
func (res *SourceResult) validatedMetrics() *table.Collection {
	c := table.NewCollection()

	for _, name := range res.Metrics.Names() {
		if r, ok := res.Validation.Get(name); ok {
			c.Put(name, r.Batch)
		}
	}

	return c
}

// contain runs fn and records its error in errs instead of returning it, so
// one failing sink does not stop the others or the report.
func contain(log *logger.Logger, errs *[]error, name string, fn TaskFunc) TaskFunc {
	return func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			log.Error("sink failed", "task", name, "error", err)
			*errs = append(*errs, fmt.Errorf("task %s: %w", name, err))
		}

		return nil
	}
}

func (o *Orchestrator) loadTask(res *SourceResult) TaskFunc {
	return func(ctx context.Context) error {
		dbc := o.cfg.Pipeline.Database
		if !dbc.Enabled || o.db == nil {
			return nil
		}

		dialect, err := database.DialectFor(dbc.Driver)
		if err != nil {
			return err
		}

		loader := load.NewDBLoader(o.db, dialect, dbc.TablePrefix+o.strings.Slug(res.Source)+"_", o.log)
		out := res.outputs()

		var errs []error

		for _, name := range out.Names() {
			b, _ := out.Get(name)

			n, err := loader.Load(ctx, name, b)
			if err != nil {
				errs = append(errs, err)
			}

			res.RowsLoaded += n
		}

		return errors.Join(errs...)
	}
}

func (o *Orchestrator) exportTask(res *SourceResult) TaskFunc {
	return func(context.Context) error {
		out := o.cfg.Pipeline.Output
		if len(out.Formats) == 0 {
			return nil
		}

		exporter := load.NewFileExporter(out.BasePath, o.filePrefix(res.Source), out.Formats, out.PrettyPrint, o.log)
		exporter.SetClock(func() time.Time { return res.Started })

		paths, err := exporter.ExportCollection(res.outputs())
		res.Outputs = append(res.Outputs, paths...)

		return err
	}
}

func (o *Orchestrator) reportTask(res *SourceResult) TaskFunc {
	return func(context.Context) error {
		if !o.report {
			return nil
		}

		dir := filepath.Join(o.cfg.Pipeline.Output.BasePath, "reports")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}

		consistency := res.Consistency

		content := formatter.Render(&formatter.Report{
			GeneratedAt: res.Started,
			Metrics:     res.validatedMetrics(),
			Consistency: &consistency,
			RunID:       res.RunID,
			Source:      res.Source,
			Validation:  res.Validation,
			Outputs:     res.Outputs,
		})

		path := filepath.Join(dir, fmt.Sprintf("%s_report_%s.md", o.filePrefix(res.Source), res.Started.Format("20060102_150405")))
		if err := os.WriteFile(path, []byte(content+"\n"), 0o644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}

		res.ReportPath = path

		return nil
	}
}

func (o *Orchestrator) filePrefix(source string) string {
	prefix := o.strings.Slug(source)
	if p := o.cfg.Pipeline.Output.Prefix; p != "" {
		prefix = p + "_" + prefix
	}

	return prefix
}
