// Package engine orchestrates a reconciliation run: schema introspection and
// source loading, name resolution, class synthesis, structural patching,
// stale-file sweeping, and registry/documentation regeneration, organized as
// ordered phases with a barrier between each.
package engine

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lofcz/minfold/internal/database"
	"github.com/lofcz/minfold/internal/database/mysql"
	"github.com/lofcz/minfold/internal/database/postgres"
	"github.com/lofcz/minfold/internal/docdump"
	"github.com/lofcz/minfold/internal/errs"
	"github.com/lofcz/minfold/internal/logger"
	"github.com/lofcz/minfold/internal/reconcile"
	"github.com/lofcz/minfold/internal/resolve"
	"github.com/lofcz/minfold/internal/schema"
	"github.com/lofcz/minfold/internal/source"
)

// Options tunes one reconciliation run.
type Options struct {
	// AggressiveNameScan enables the last-resort suffix-strip rule of the
	// table↔class resolver.
	AggressiveNameScan bool

	// Parallelism bounds concurrent per-table work. Zero means GOMAXPROCS.
	Parallelism int

	// Directories relative to the project root.
	ModelsDir string
	DaoDir    string
	SchemaDir string

	// SkipDocs disables the schema documentation dump.
	SkipDocs bool
}

func (o *Options) normalize() {
	if o.Parallelism <= 0 {
		o.Parallelism = runtime.GOMAXPROCS(0)
	}
	if o.ModelsDir == "" {
		o.ModelsDir = "models"
	}
	if o.DaoDir == "" {
		o.DaoDir = "dao"
	}
	if o.SchemaDir == "" {
		o.SchemaDir = "schema"
	}
}

// Skip is one attributable non-fatal omission: the run completed, but this
// table/class/artifact was left out for the stated reason.
type Skip struct {
	Kind   string // "class", "wrapper", "doc"
	Target string
	Reason string
}

// Result summarizes a completed run.
type Result struct {
	Synchronized []string // tables reconciled against an existing class
	Synthesized  []string // tables that got a freshly generated class
	Deleted      []string // stale generated files removed by the sweep
	Skips        []Skip
}

// sweepAllowlist names hand-maintained files the sweep must never delete.
var sweepAllowlist = map[string]bool{
	"base.go":     true,
	"identity.go": true,
	"registry.go": true,
}

// Synchronize is the run entry point: it connects to the schema source
// described by cfg, reconciles the project at projectPath, and reports the
// outcome. Connection failures abort before any file is written, with the
// failing step identified on the error.
func Synchronize(ctx context.Context, cfg *database.Config, projectPath string, opts Options, log *logger.Logger) (*Result, error) {
	var (
		db  database.DB
		err error
	)
	switch cfg.Driver {
	case database.DriverPostgres:
		db, err = postgres.New(ctx, cfg)
	case database.DriverMySQL:
		db, err = mysql.New(ctx, cfg)
	default:
		return nil, errs.New(errs.ErrKindInvalidInput, "unknown driver "+string(cfg.Driver))
	}
	if err != nil {
		return nil, errs.WrapStep(errs.StepConnect, errs.ErrKindConnectionFailed,
			"cannot open schema source", err)
	}
	defer db.Close()

	return Run(ctx, db, projectPath, opts, log)
}

// Run executes the phased reconciliation against an already-open schema
// source. Split from Synchronize so callers (and tests) can supply their own
// database.DB.
func Run(ctx context.Context, db database.DB, projectPath string, opts Options, log *logger.Logger) (*Result, error) {
	opts.normalize()

	rc := &runContext{
		db:     db,
		svc:    schema.NewService(db, log),
		log:    log,
		opts:   opts,
		root:   projectPath,
		tcm:    resolve.NewTableClassMap(),
		synced: &resolve.SyncSet{},
		result: &Result{},
	}

	if err := rc.load(ctx); err != nil {
		return nil, err
	}
	rc.probe(ctx)
	if err := rc.synthesize(ctx); err != nil {
		return nil, err
	}
	rc.patch(ctx)
	rc.sweep()
	if err := rc.finish(ctx); err != nil {
		return nil, err
	}

	sort.Strings(rc.result.Synchronized)
	sort.Strings(rc.result.Synthesized)
	sort.Strings(rc.result.Deleted)
	return rc.result, nil
}

// runContext is the state of one run: built fresh per run, read by many
// workers after each phase barrier, never a process-wide singleton.
type runContext struct {
	db   database.DB
	svc  *schema.Service
	log  *logger.Logger
	opts Options
	root string

	tables   map[string]*schema.Table // lower table name
	ordered  []*schema.Table          // introspection order
	resolver *resolve.Resolver
	tcm      *resolve.TableClassMap
	synced   *resolve.SyncSet // deletion safety: lower class and wrapper names
	uniform  bool

	modelsPkg    string
	daoPkg       string
	modelsImport string

	modelDocs []*source.Document
	daoDocs   []*source.Document

	mu       sync.Mutex
	entries  []reconcile.RegistryEntry // tables reconciled this run
	docLocks map[*source.Document]*sync.Mutex
	result   *Result
}

func (rc *runContext) modelsDir() string { return filepath.Join(rc.root, rc.opts.ModelsDir) }
func (rc *runContext) daoDir() string    { return filepath.Join(rc.root, rc.opts.DaoDir) }
func (rc *runContext) schemaDir() string { return filepath.Join(rc.root, rc.opts.SchemaDir) }

func (rc *runContext) skip(kind, target, reason string) {
	rc.mu.Lock()
	rc.result.Skips = append(rc.result.Skips, Skip{Kind: kind, Target: target, Reason: reason})
	rc.mu.Unlock()
	rc.log.WarnWith("skipped during reconciliation", map[string]any{
		"kind": kind, "target": target, "reason": reason,
	})
}

// load is phase 1: schema introspection and source-tree loading run
// concurrently; nothing downstream starts until both finish.
func (rc *runContext) load(ctx context.Context) error {
	if err := rc.svc.TestConnection(ctx); err != nil {
		return errs.WrapStep(errs.StepConnect, errs.ErrKindConnectionFailed,
			"schema source unreachable", err)
	}

	mod, err := modulePath(rc.root)
	if err != nil {
		return err
	}
	rc.modelsImport = mod + "/" + filepath.ToSlash(rc.opts.ModelsDir)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tables, err := rc.svc.GetSchema(gctx)
		if err != nil {
			return errs.WrapStep(errs.StepSchema, errs.ErrKindQueryFailed,
				"schema introspection failed", err)
		}
		rc.ordered = tables
		rc.tables = make(map[string]*schema.Table, len(tables))
		for _, t := range tables {
			rc.tables[strings.ToLower(t.Name)] = t
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if rc.modelDocs, err = loadDocs(rc.modelsDir()); err != nil {
			return err
		}
		rc.daoDocs, err = loadDocs(rc.daoDir())
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	rc.modelsPkg = packageName(rc.modelDocs, rc.opts.ModelsDir)
	rc.daoPkg = packageName(rc.daoDocs, rc.opts.DaoDir)
	rc.resolver = resolve.NewResolver(rc.ordered, rc.opts.AggressiveNameScan)
	rc.uniform = reconcile.UniformIdentity(rc.daoDir())

	// The initial table↔class map: every class that resolves a table.
	for _, doc := range rc.modelDocs {
		for _, cm := range doc.Classes() {
			tbl, ok := rc.resolver.ResolveTable(cm.Name)
			if !ok {
				rc.skip("class", cm.Name, "no table resolves to this class")
				continue
			}
			if !rc.tcm.TryInsert(tbl, cm) {
				rc.skip("class", cm.Name, "table "+tbl.Name+" already claimed by another class")
			}
		}
	}

	rc.log.With().
		Int("tables", len(rc.ordered)).
		Int("model_files", len(rc.modelDocs)).
		Logger().Info("load complete")
	return nil
}

// probe is phase 2: read-only drift detection that pre-populates the
// deletion-safety set. Every class with a resolved table is safe from the
// sweep no matter how its patch later fares.
func (rc *runContext) probe(ctx context.Context) {
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(rc.opts.Parallelism)
	rc.tcm.Range(func(tableName string, cm *source.ClassModel) bool {
		tbl := rc.tables[tableName]
		g.Go(func() error {
			rc.synced.Add(cm.Name)
			rc.synced.Add(source.ToPascalCase(tbl.Name))
			if !reconcile.ComputePatch(cm, tbl).Empty() {
				rc.log.With().Str("class", cm.Name).Logger().Debug("structural drift detected")
			}
			return nil
		})
		return true
	})
	_ = g.Wait()
}

// synthesize is phase 3: tables with no resolved class get a fresh model and
// wrapper. Per-table work is self-contained; the table↔class map is
// append-only during this phase.
func (rc *runContext) synthesize(ctx context.Context) error {
	if err := rc.ensureBase(); err != nil {
		return err
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(rc.opts.Parallelism)
	for _, tbl := range rc.ordered {
		if _, ok := rc.tcm.ClassFor(tbl.Name); ok {
			continue
		}
		tbl := tbl
		g.Go(func() error {
			rc.synthesizeTable(tbl)
			return nil
		})
	}
	return g.Wait()
}

func (rc *runContext) synthesizeTable(tbl *schema.Table) {
	className := resolve.ClassName(tbl.Name)
	path := filepath.Join(rc.modelsDir(), strings.ToLower(className)+".go")
	if _, err := os.Stat(path); err == nil {
		rc.skip("class", className, "refusing to overwrite existing file "+filepath.Base(path))
		return
	}

	src, err := reconcile.RenderModel(rc.modelsPkg, className, tbl, rc.uniform)
	if err != nil {
		rc.skip("class", className, err.Error())
		return
	}
	if err := writeFile(path, src); err != nil {
		rc.skip("class", className, err.Error())
		return
	}

	doc, err := source.Parse(path, src)
	if err != nil {
		rc.skip("class", className, err.Error())
		return
	}
	cm, ok := doc.FindClass(className)
	if !ok || !rc.tcm.TryInsert(tbl, cm) {
		rc.skip("class", className, "class name already claimed")
		return
	}

	rc.mu.Lock()
	rc.modelDocs = append(rc.modelDocs, doc)
	rc.result.Synthesized = append(rc.result.Synthesized, tbl.Name)
	rc.mu.Unlock()
	rc.synced.Add(className)
	rc.synced.Add(source.ToPascalCase(tbl.Name))

	if err := rc.synthesizeWrapper(tbl, className); err != nil {
		rc.skip("wrapper", className, err.Error())
	}
}

func (rc *runContext) synthesizeWrapper(tbl *schema.Table, className string) error {
	wrapperName := source.ToPascalCase(tbl.Name)
	path := filepath.Join(rc.daoDir(), strings.ToLower(wrapperName)+".go")
	if _, err := os.Stat(path); err == nil {
		return nil // a wrapper file already exists; phase 4 normalizes it
	}

	getById := !rc.uniform && tbl.IdentityColumn() != nil
	src, err := reconcile.RenderWrapper(rc.daoPkg, wrapperName, className,
		rc.modelsImport, rc.modelsPkg, tbl, getById)
	if err != nil {
		return err
	}
	if err := writeFile(path, src); err != nil {
		return err
	}

	doc, err := source.Parse(path, src)
	if err != nil {
		return err
	}
	rc.mu.Lock()
	rc.daoDocs = append(rc.daoDocs, doc)
	rc.mu.Unlock()
	return nil
}

// ensureBase writes the shared Crud base when the DAO directory lacks one.
func (rc *runContext) ensureBase() error {
	path := filepath.Join(rc.daoDir(), "base.go")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	src, err := reconcile.RenderBase(rc.daoPkg)
	if err != nil {
		return err
	}
	return writeFile(path, src)
}

// patch is phase 4: the full reconciliation pipeline per mapped class. Units
// are grouped by source file, one worker per file: classes declared together
// are patched sequentially, so no two goroutines ever mutate the same
// Document. Unit failures are attributable skips, never run failures.
func (rc *runContext) patch(ctx context.Context) {
	type unit struct {
		tbl *schema.Table
		cm  *source.ClassModel
	}
	groups := make(map[*source.Document][]unit)
	var order []*source.Document
	rc.tcm.Range(func(tableName string, cm *source.ClassModel) bool {
		if _, seen := groups[cm.Doc]; !seen {
			order = append(order, cm.Doc)
		}
		groups[cm.Doc] = append(groups[cm.Doc], unit{rc.tables[tableName], cm})
		return true
	})

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(rc.opts.Parallelism)
	for _, doc := range order {
		units := groups[doc]
		g.Go(func() error {
			for _, u := range units {
				if err := rc.patchOne(u.tbl, u.cm); err != nil {
					rc.skip("class", u.cm.Name, err.Error())
					continue
				}
				identity := ""
				if col := u.tbl.IdentityColumn(); col != nil {
					identity = col.Name
				}
				rc.mu.Lock()
				rc.entries = append(rc.entries, reconcile.RegistryEntry{
					Wrapper:  source.ToPascalCase(u.tbl.Name),
					Table:    u.tbl.Name,
					Identity: identity,
				})
				if !contains(rc.result.Synthesized, u.tbl.Name) {
					rc.result.Synchronized = append(rc.result.Synchronized, u.tbl.Name)
				}
				rc.mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (rc *runContext) patchOne(tbl *schema.Table, cm *source.ClassModel) error {
	if err := reconcile.ApplyPatch(cm, reconcile.ComputePatch(cm, tbl)); err != nil {
		return err
	}
	fkp := reconcile.ComputeForeignKeyPatch(cm, tbl, rc.tcm)
	if err := reconcile.ApplyForeignKeyPatch(cm, fkp); err != nil {
		return err
	}
	if err := reconcile.ReconcileConstructors(cm, tbl); err != nil {
		return err
	}
	if err := cm.Doc.Save(); err != nil {
		return err
	}
	return rc.patchWrapper(tbl)
}

func (rc *runContext) patchWrapper(tbl *schema.Table) error {
	wrapperName := source.ToPascalCase(tbl.Name)
	class, ok := rc.tcm.ClassFor(tbl.Name)
	if !ok {
		return errs.New(errs.ErrKindNotFound, "no class for "+tbl.Name)
	}

	doc := rc.findWrapperDoc(wrapperName)
	if doc == nil {
		return rc.synthesizeWrapper(tbl, class.Name)
	}

	spec := reconcile.WrapperSpec{
		WrapperName:  wrapperName,
		ClassName:    class.Name,
		ModelsImport: rc.modelsImport,
		ModelsPkg:    rc.modelsPkg,
		GetById:      !rc.uniform && tbl.IdentityColumn() != nil,
	}

	// A user may declare several wrappers in one dao file; units owning
	// those wrappers can run on different workers.
	mu := rc.docLock(doc)
	mu.Lock()
	defer mu.Unlock()

	if err := reconcile.UpdateWrapper(doc, spec); err != nil {
		return err
	}
	return doc.Save()
}

// docLock returns the mutex serializing writes to one dao document.
func (rc *runContext) docLock(doc *source.Document) *sync.Mutex {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.docLocks == nil {
		rc.docLocks = make(map[*source.Document]*sync.Mutex)
	}
	mu, ok := rc.docLocks[doc]
	if !ok {
		mu = &sync.Mutex{}
		rc.docLocks[doc] = mu
	}
	return mu
}

func (rc *runContext) findWrapperDoc(wrapperName string) *source.Document {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for _, doc := range rc.daoDocs {
		if _, ok := doc.FindClass(wrapperName); ok {
			return doc
		}
	}
	return nil
}

// finish is phase 6: rebuild the aggregate registry from the tables that
// were actually reconciled this run, then regenerate per-table schema docs
// in parallel. Doc failures skip only their own table.
func (rc *runContext) finish(ctx context.Context) error {
	if err := rc.rebuildRegistry(); err != nil {
		return err
	}
	if rc.opts.SkipDocs {
		return nil
	}

	writer := docdump.New(rc.svc, rc.log, rc.schemaDir())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rc.opts.Parallelism)
	for _, tbl := range rc.ordered {
		cm, ok := rc.tcm.ClassFor(tbl.Name)
		if !ok {
			continue
		}
		tbl, className := tbl, cm.Name
		g.Go(func() error {
			if err := writer.WriteTable(gctx, tbl, className); err != nil {
				rc.skip("doc", tbl.Name, err.Error())
			}
			return nil
		})
	}
	return g.Wait()
}

func (rc *runContext) rebuildRegistry() error {
	path := filepath.Join(rc.daoDir(), "registry.go")
	current, err := os.ReadFile(path)
	if err != nil {
		if current, err = reconcile.RenderRegistry(rc.daoPkg); err != nil {
			return errs.WrapStep(errs.StepRegistry, errs.ErrKindWriteFailed,
				"synthesize registry", err)
		}
	}

	rc.mu.Lock()
	entries := append([]reconcile.RegistryEntry(nil), rc.entries...)
	rc.mu.Unlock()

	out, err := reconcile.RebuildRegistry(current, entries)
	if err != nil {
		return errs.WrapStep(errs.StepRegistry, errs.ErrKindParseFailed,
			"registry marker blocks", err)
	}
	if bytes.Equal(out, current) {
		return nil
	}
	if err := writeFile(path, out); err != nil {
		return errs.WrapStep(errs.StepRegistry, errs.ErrKindWriteFailed, "write registry", err)
	}
	return nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.Wrap(errs.ErrKindWriteFailed, "create "+filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errs.Wrap(errs.ErrKindWriteFailed, "write "+path, err)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
