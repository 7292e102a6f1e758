package graphorm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/syssam/graphorm/dialect"
	"github.com/syssam/graphorm/dialect/sql/migrate"
	"github.com/syssam/graphorm/schema"
)

// FormatVersion is the version of the storage layout written by this
// package. A stored layout of another version is replaced on open in
// versioned mode.
const FormatVersion = 1

// Meta is the metadata record of a versioned data source.
type Meta struct {
	ID         schema.ID
	ORMVersion int `orm:"name=ormVersion"`
	DBVersion  int `orm:"name=dbVersion"`
}

// TableName implements schema.Tabler.
func (Meta) TableName() string { return "graphorm_meta" }

// Option configures a DataSource.
type Option func(*config)

type config struct {
	models    []any
	version   int
	versioned bool
	logger    *slog.Logger
}

// Entities registers entity types. A model is a struct value, a pointer
// to one, or its reflect.Type.
func Entities(models ...any) Option {
	return func(c *config) {
		c.models = append(c.models, models...)
	}
}

// Versioned enables versioned mode with the application schema version.
// When the stored version differs on open, every table is dropped and
// created again. All stored data is lost.
func Versioned(version int) Option {
	return func(c *config) {
		c.versioned = true
		c.version = version
	}
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// DataSource maps registered entities onto a storage backend.
//
//	ds, err := graphorm.New(sql.New(dialect.SQLite, dsn), graphorm.Entities(Cat{}, Kitten{}))
//	if err != nil {
//		return err
//	}
//	if err := ds.Open(ctx); err != nil {
//		return err
//	}
//	defer ds.Close()
//
// Operations are synchronous. The data source adds no locking of its own;
// instances must not be shared by concurrent calls.
type DataSource struct {
	backend   dialect.Backend
	reg       *schema.Registry
	meta      *schema.Entity
	version   int
	versioned bool
	logger    *slog.Logger
}

// New classifies the registered entities and returns a closed data
// source. Mapping errors are returned here as *ConfigError.
func New(backend dialect.Backend, opts ...Option) (*DataSource, error) {
	cfg := &config{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}
	reg, err := schema.NewRegistry(append(cfg.models, Meta{})...)
	if err != nil {
		return nil, err
	}
	var tables []*migrate.Table
	for _, e := range reg.Entities() {
		tables = append(tables, migrate.Tables(e)...)
	}
	if res := migrate.ValidateSchema(tables); res.HasErrors() {
		return nil, &ConfigError{Type: res.Errors[0].Table, Err: res.Err()}
	}
	meta, _ := reg.Lookup(reflect.TypeOf(Meta{}))
	return &DataSource{
		backend:   backend,
		reg:       reg,
		meta:      meta,
		version:   cfg.version,
		versioned: cfg.versioned,
		logger:    cfg.logger,
	}, nil
}

// Open opens the backend and creates the schema. In versioned mode a
// stored schema of another version is dropped and created again.
func (ds *DataSource) Open(ctx context.Context) error {
	if err := ds.backend.Open(ctx); err != nil {
		return err
	}
	if err := ds.migrate(ctx); err != nil {
		return errors.Join(err, ds.backend.Close())
	}
	return nil
}

// Close closes the backend.
func (ds *DataSource) Close() error {
	return ds.backend.Close()
}

// IsOpen reports whether the data source is open.
func (ds *DataSource) IsOpen() bool {
	return ds.backend.IsOpen()
}

// Registry returns the entity registry.
func (ds *DataSource) Registry() *schema.Registry {
	return ds.reg
}

// Backend returns the storage backend.
func (ds *DataSource) Backend() dialect.Backend {
	return ds.backend
}

// Meta returns the stored metadata record. It returns a NotFoundError
// when the data source is not versioned.
func (ds *DataSource) Meta(ctx context.Context) (*Meta, error) {
	if err := ds.checkOpen("meta"); err != nil {
		return nil, err
	}
	ok, err := ds.backend.HasTable(ctx, ds.meta.Name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewNotFoundError(ds.meta.Name, 0)
	}
	insts, err := newReader(ctx, ds.backend).loadRows(ds.meta, dialect.Filter{}, reflect.Value{})
	if err != nil {
		return nil, err
	}
	if len(insts) == 0 {
		return nil, NewNotFoundError(ds.meta.Name, 0)
	}
	return insts[0].Interface().(*Meta), nil
}

func (ds *DataSource) checkOpen(op string) error {
	if !ds.backend.IsOpen() {
		return &NotOpenError{Op: op}
	}
	return nil
}

// entities returns the application entities, without the meta record.
func (ds *DataSource) entities() []*schema.Entity {
	var es []*schema.Entity
	for _, e := range ds.reg.Entities() {
		if e != ds.meta {
			es = append(es, e)
		}
	}
	return es
}

// instance returns the entity and value of a pointer to a registered
// struct.
func (ds *DataSource) instance(entity any) (*schema.Entity, reflect.Value, error) {
	v := reflect.ValueOf(entity)
	if !v.IsValid() || v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return nil, reflect.Value{}, fmt.Errorf("graphorm: entity must be a non-nil pointer to a struct, got %T", entity)
	}
	e, ok := ds.reg.Lookup(v.Type())
	if !ok {
		return nil, reflect.Value{}, unregistered(v.Type().Elem().String())
	}
	return e, v, nil
}

func lookup[T any](ds *DataSource) (*schema.Entity, error) {
	t := schema.TypeOf[T]()
	e, ok := ds.reg.Lookup(t)
	if !ok || t.Kind() != reflect.Struct {
		return nil, unregistered(t.String())
	}
	return e, nil
}

func (ds *DataSource) migrate(ctx context.Context) error {
	if !ds.versioned {
		for _, e := range ds.entities() {
			if err := ds.createIfMissing(ctx, e); err != nil {
				return err
			}
		}
		return nil
	}
	ok, err := ds.backend.HasTable(ctx, ds.meta.Name)
	if err != nil {
		return err
	}
	if ok {
		m, err := ds.Meta(ctx)
		if err != nil && !IsNotFound(err) {
			return err
		}
		if m != nil && m.ORMVersion == FormatVersion && m.DBVersion == ds.version {
			for _, e := range ds.entities() {
				if err := ds.createIfMissing(ctx, e); err != nil {
					return err
				}
			}
			return nil
		}
		var stored, format int
		if m != nil {
			stored, format = m.DBVersion, m.ORMVersion
		}
		ds.logger.WarnContext(ctx, "graphorm: schema version changed, dropping all tables",
			"stored_version", stored, "version", ds.version,
			"stored_format", format, "format", FormatVersion)
		if err := ds.dropAll(ctx); err != nil {
			return err
		}
	}
	for _, e := range ds.entities() {
		if err := ds.createIfMissing(ctx, e); err != nil {
			return err
		}
	}
	if err := ds.create(ctx, ds.meta); err != nil {
		return err
	}
	vs := ds.backend.PrepareValueSet()
	vs.Put("ormVersion", int64(FormatVersion))
	vs.Put("dbVersion", int64(ds.version))
	if _, err := ds.backend.Insert(ctx, ds.meta.Name, vs); err != nil {
		return fmt.Errorf("graphorm: write meta record: %w", err)
	}
	return nil
}

func (ds *DataSource) createIfMissing(ctx context.Context, e *schema.Entity) error {
	ok, err := ds.backend.HasTable(ctx, e.Name)
	if err != nil || ok {
		return err
	}
	return ds.create(ctx, e)
}

// create runs the DDL of one entity in one transaction.
func (ds *DataSource) create(ctx context.Context, e *schema.Entity) error {
	ds.logger.DebugContext(ctx, "graphorm: create tables", "entity", e.Name)
	return ds.execDDL(ctx, migrate.CreateStatements(e, ds.backend))
}

func (ds *DataSource) dropAll(ctx context.Context) error {
	for _, e := range ds.reg.Entities() {
		if err := ds.execDDL(ctx, migrate.DropStatements(e)); err != nil {
			return err
		}
	}
	return nil
}

func (ds *DataSource) execDDL(ctx context.Context, stmts []string) (rerr error) {
	tx, err := ds.backend.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if rerr != nil {
			if err := tx.Rollback(); err != nil {
				rerr = errors.Join(rerr, &RollbackError{Err: err})
			}
		}
	}()
	for _, stmt := range stmts {
		if err := tx.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}
