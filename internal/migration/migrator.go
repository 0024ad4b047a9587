package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/postgres/*.sql
var postgresFS embed.FS

//go:embed migrations/mysql/*.sql
var mysqlFS embed.FS

//go:embed migrations/sqlite/*.sql
var sqliteFS embed.FS

// DefaultTableName 版本记录表
const DefaultTableName = "agentkernel_schema_migrations"

// SnapshotTable 由迁移创建、SQL 快照存储读写的表
const SnapshotTable = "kernel_snapshots"

var (
	// ErrSchemaDirty 上一次迁移中途失败，需要 force 修复
	ErrSchemaDirty = errors.New("schema is dirty")
	// ErrSchemaBehind 存在未应用的迁移
	ErrSchemaBehind = errors.New("schema has pending migrations")
)

// DatabaseType 数据库方言
type DatabaseType string

const (
	DatabaseTypePostgres DatabaseType = "postgres"
	DatabaseTypeMySQL    DatabaseType = "mysql"
	DatabaseTypeSQLite   DatabaseType = "sqlite"
)

// MigrationStatus 单个迁移文件的状态
type MigrationStatus struct {
	Version uint
	Name    string
	Applied bool
	Dirty   bool
}

// MigrationInfo 迁移汇总
type MigrationInfo struct {
	CurrentVersion    uint
	LatestVersion     uint
	Dirty             bool
	TotalMigrations   int
	AppliedMigrations int
	PendingMigrations int
}

// UpToDate reports whether every embedded migration is applied cleanly.
func (i *MigrationInfo) UpToDate() bool {
	return !i.Dirty && i.PendingMigrations == 0
}

// Config 迁移器配置
type Config struct {
	DatabaseType DatabaseType
	// DatabaseURL 格式随方言而定，见 BuildDatabaseURL
	DatabaseURL string
	// TableName 默认 DefaultTableName
	TableName string
	// LockTimeout 默认 15s
	LockTimeout time.Duration
	// Logger 可选；nil 时静默
	Logger *zap.Logger
}

// Migrator 快照表 Schema 迁移操作集
type Migrator interface {
	Up(ctx context.Context) error
	Down(ctx context.Context) error
	DownAll(ctx context.Context) error
	// Steps: n > 0 向前，n < 0 回滚
	Steps(ctx context.Context, n int) error
	Goto(ctx context.Context, version uint) error
	// Force 只改版本号，不执行 SQL
	Force(ctx context.Context, version int) error
	Version(ctx context.Context) (uint, bool, error)
	Status(ctx context.Context) ([]MigrationStatus, error)
	Info(ctx context.Context) (*MigrationInfo, error)
	// Check 在 Schema 脏或落后时返回 ErrSchemaDirty / ErrSchemaBehind
	Check(ctx context.Context) error
	Close() error
}

// =============================================================================
// 方言表
// =============================================================================

type dialect struct {
	driverName string
	fsys       fs.FS
	dir        string
	instance   func(db *sql.DB, table string) (database.Driver, error)
}

// SQLite 走纯 Go 的 modernc 驱动（golang-migrate 的 sqlite 包负责注册）
var dialects = map[DatabaseType]dialect{
	DatabaseTypePostgres: {
		driverName: "postgres",
		fsys:       postgresFS,
		dir:        "migrations/postgres",
		instance: func(db *sql.DB, table string) (database.Driver, error) {
			return postgres.WithInstance(db, &postgres.Config{MigrationsTable: table})
		},
	},
	DatabaseTypeMySQL: {
		driverName: "mysql",
		fsys:       mysqlFS,
		dir:        "migrations/mysql",
		instance: func(db *sql.DB, table string) (database.Driver, error) {
			return mysql.WithInstance(db, &mysql.Config{MigrationsTable: table})
		},
	},
	DatabaseTypeSQLite: {
		driverName: "sqlite",
		fsys:       sqliteFS,
		dir:        "migrations/sqlite",
		instance: func(db *sql.DB, table string) (database.Driver, error) {
			return sqlite.WithInstance(db, &sqlite.Config{MigrationsTable: table})
		},
	},
}

// ParseDatabaseType accepts the config driver names plus common aliases.
func ParseDatabaseType(s string) (DatabaseType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pg":
		return DatabaseTypePostgres, nil
	case "mysql", "mariadb":
		return DatabaseTypeMySQL, nil
	case "sqlite", "sqlite3":
		return DatabaseTypeSQLite, nil
	}
	return "", fmt.Errorf("unsupported database type: %q", s)
}

// BuildDatabaseURL 拼接 golang-migrate 可用的连接串。
// MySQL 需要 multiStatements 才能执行多语句迁移文件；Postgres 默认 sslmode=require。
func BuildDatabaseURL(dbType DatabaseType, host string, port int, name, user, password, sslMode string) string {
	switch dbType {
	case DatabaseTypePostgres:
		if sslMode == "" {
			sslMode = "require"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", user, password, host, port, name, sslMode)
	case DatabaseTypeMySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true", user, password, host, port, name)
	case DatabaseTypeSQLite:
		return fmt.Sprintf("file:%s?mode=rwc&_pragma=foreign_keys(1)", name)
	}
	return ""
}

// =============================================================================
// DefaultMigrator
// =============================================================================

// DefaultMigrator 基于 golang-migrate 与内嵌 SQL 文件
type DefaultMigrator struct {
	config  Config
	dialect dialect
	migrate *migrate.Migrate
	db      *sql.DB
	logger  *zap.Logger
}

var _ Migrator = (*DefaultMigrator)(nil)

// NewMigrator opens the database and prepares the embedded migration source.
func NewMigrator(cfg *Config) (*DefaultMigrator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required")
	}
	d, ok := dialects[cfg.DatabaseType]
	if !ok {
		return nil, fmt.Errorf("unsupported database type: %q", cfg.DatabaseType)
	}

	c := *cfg
	if c.TableName == "" {
		c.TableName = DefaultTableName
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = 15 * time.Second
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &DefaultMigrator{
		config:  c,
		dialect: d,
		logger:  logger.With(zap.String("component", "migration"), zap.String("database", string(c.DatabaseType))),
	}
	if err := m.open(); err != nil {
		return nil, fmt.Errorf("failed to initialize migrator: %w", err)
	}
	return m, nil
}

func (m *DefaultMigrator) open() error {
	db, err := sql.Open(m.dialect.driverName, m.config.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	fail := func(what string, err error) error {
		_ = db.Close()
		return fmt.Errorf("%s: %w", what, err)
	}
	if err := db.Ping(); err != nil {
		return fail("ping database", err)
	}
	driver, err := m.dialect.instance(db, m.config.TableName)
	if err != nil {
		return fail("create database driver", err)
	}
	src, err := iofs.New(m.dialect.fsys, m.dialect.dir)
	if err != nil {
		return fail("create source driver", err)
	}
	mg, err := migrate.NewWithInstance("iofs", src, string(m.config.DatabaseType), driver)
	if err != nil {
		return fail("create migrate instance", err)
	}
	mg.LockTimeout = m.config.LockTimeout
	mg.Log = migrateLogger{m.logger.Sugar()}

	m.db = db
	m.migrate = mg
	return nil
}

// run executes one golang-migrate operation; ctx cancellation requests a graceful stop
// after the migration in flight. ErrNoChange is success.
func (m *DefaultMigrator) run(ctx context.Context, op string, fn func() error) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			select {
			case m.migrate.GracefulStop <- true:
			default:
			}
		case <-done:
		}
	}()

	start := time.Now()
	err := fn()
	if errors.Is(err, migrate.ErrNoChange) {
		m.logger.Debug("no migration to apply", zap.String("op", op))
		return nil
	}
	if err != nil {
		m.logger.Error("migration failed", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("migration %s failed: %w", op, err)
	}
	m.logger.Info("migration applied", zap.String("op", op), zap.Duration("duration", time.Since(start)))
	return nil
}

func (m *DefaultMigrator) Up(ctx context.Context) error {
	return m.run(ctx, "up", m.migrate.Up)
}

func (m *DefaultMigrator) Down(ctx context.Context) error {
	return m.run(ctx, "down", func() error { return m.migrate.Steps(-1) })
}

func (m *DefaultMigrator) DownAll(ctx context.Context) error {
	return m.run(ctx, "down-all", m.migrate.Down)
}

func (m *DefaultMigrator) Steps(ctx context.Context, n int) error {
	return m.run(ctx, "steps", func() error { return m.migrate.Steps(n) })
}

func (m *DefaultMigrator) Goto(ctx context.Context, version uint) error {
	return m.run(ctx, "goto", func() error { return m.migrate.Migrate(version) })
}

func (m *DefaultMigrator) Force(ctx context.Context, version int) error {
	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("migration force failed: %w", err)
	}
	m.logger.Warn("migration version forced", zap.Int("version", version))
	return nil
}

// Version returns 0 when nothing has been applied yet.
func (m *DefaultMigrator) Version(ctx context.Context) (uint, bool, error) {
	v, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get version: %w", err)
	}
	return v, dirty, nil
}

func (m *DefaultMigrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	files, err := listMigrations(m.dialect.fsys, m.dialect.dir)
	if err != nil {
		return nil, err
	}
	out := make([]MigrationStatus, 0, len(files))
	for _, f := range files {
		out = append(out, MigrationStatus{
			Version: f.version,
			Name:    f.name,
			Applied: f.version <= current,
			Dirty:   dirty && f.version == current,
		})
	}
	return out, nil
}

func (m *DefaultMigrator) Info(ctx context.Context) (*MigrationInfo, error) {
	statuses, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	info := &MigrationInfo{CurrentVersion: current, Dirty: dirty, TotalMigrations: len(statuses)}
	for _, s := range statuses {
		if s.Applied {
			info.AppliedMigrations++
		}
		if s.Version > info.LatestVersion {
			info.LatestVersion = s.Version
		}
	}
	info.PendingMigrations = info.TotalMigrations - info.AppliedMigrations
	return info, nil
}

func (m *DefaultMigrator) Check(ctx context.Context) error {
	info, err := m.Info(ctx)
	if err != nil {
		return err
	}
	switch {
	case info.Dirty:
		return fmt.Errorf("%w at version %d", ErrSchemaDirty, info.CurrentVersion)
	case info.PendingMigrations > 0:
		return fmt.Errorf("%w: at %d, latest %d", ErrSchemaBehind, info.CurrentVersion, info.LatestVersion)
	}
	return nil
}

// Close 同时关闭迁移源与数据库连接
func (m *DefaultMigrator) Close() error {
	if m.migrate == nil {
		return nil
	}
	srcErr, dbErr := m.migrate.Close()
	if err := errors.Join(srcErr, dbErr); err != nil {
		return fmt.Errorf("failed to close migrator: %w", err)
	}
	return nil
}

// =============================================================================
// 迁移文件枚举
// =============================================================================

type migrationFile struct {
	version uint
	name    string
}

// listMigrations 解析 <version>_<name>.up.sql，按版本升序
func listMigrations(fsys fs.FS, dir string) ([]migrationFile, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}
	seen := make(map[uint]struct{})
	var out []migrationFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		ver, rest, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(ver, 10, 32)
		if err != nil {
			continue
		}
		if _, dup := seen[uint(v)]; dup {
			continue
		}
		seen[uint(v)] = struct{}{}
		out = append(out, migrationFile{version: uint(v), name: strings.TrimSuffix(rest, ".up.sql")})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// migrateLogger 把 golang-migrate 的日志转到 zap
type migrateLogger struct {
	s *zap.SugaredLogger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.s.Debugf(strings.TrimRight(format, "\n"), v...)
}

func (l migrateLogger) Verbose() bool { return false }
