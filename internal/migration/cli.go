package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
)

// Commands lists the subcommands accepted by CLI.Run
var Commands = []string{"up", "down", "down-all", "steps", "goto", "force", "version", "status", "info", "check"}

// CLI 面向终端的迁移命令，输出写入 Output
type CLI struct {
	migrator Migrator
	output   io.Writer
}

// NewCLI creates a CLI writing to stdout
func NewCLI(migrator Migrator) *CLI {
	return &CLI{migrator: migrator, output: os.Stdout}
}

// SetOutput redirects CLI output
func (c *CLI) SetOutput(w io.Writer) {
	c.output = w
}

func (c *CLI) printf(format string, args ...any) {
	fmt.Fprintf(c.output, format, args...)
}

// Run dispatches a subcommand by name; steps/goto/force take one numeric argument.
func (c *CLI) Run(ctx context.Context, command string, args ...string) error {
	simple := map[string]func(context.Context) error{
		"up":       c.RunUp,
		"down":     c.RunDown,
		"down-all": c.RunDownAll,
		"version":  c.RunVersion,
		"status":   c.RunStatus,
		"info":     c.RunInfo,
		"check":    c.RunCheck,
	}
	if fn, ok := simple[command]; ok {
		return fn(ctx)
	}

	switch command {
	case "steps", "goto", "force":
	default:
		return fmt.Errorf("unknown migrate command %q (want one of %v)", command, Commands)
	}
	if len(args) != 1 {
		return fmt.Errorf("%s requires exactly one argument", command)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("%s: invalid number %q: %w", command, args[0], err)
	}
	switch command {
	case "steps":
		return c.RunSteps(ctx, n)
	case "goto":
		if n < 0 {
			return fmt.Errorf("goto: version must not be negative")
		}
		return c.RunGoto(ctx, uint(n))
	default:
		return c.RunForce(ctx, n)
	}
}

// reportVersion 操作后打印当前版本
func (c *CLI) reportVersion(ctx context.Context, prefix string) error {
	v, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return err
	}
	if prefix != "" {
		c.printf("%s ", prefix)
	}
	c.printf("Current version: %d", v)
	if dirty {
		c.printf(" (dirty)")
	}
	c.printf("\n")
	return nil
}

func (c *CLI) RunUp(ctx context.Context) error {
	c.printf("Applying pending migrations to %s...\n", SnapshotTable)
	if err := c.migrator.Up(ctx); err != nil {
		return err
	}
	return c.reportVersion(ctx, "Migrations complete.")
}

func (c *CLI) RunDown(ctx context.Context) error {
	c.printf("Rolling back last migration...\n")
	if err := c.migrator.Down(ctx); err != nil {
		return err
	}
	return c.reportVersion(ctx, "Rollback complete.")
}

// RunDownAll drops the snapshot schema entirely.
func (c *CLI) RunDownAll(ctx context.Context) error {
	c.printf("Rolling back all migrations (this drops %s)...\n", SnapshotTable)
	if err := c.migrator.DownAll(ctx); err != nil {
		return err
	}
	c.printf("All migrations rolled back.\n")
	return nil
}

func (c *CLI) RunSteps(ctx context.Context, n int) error {
	if n >= 0 {
		c.printf("Applying %d migration(s)...\n", n)
	} else {
		c.printf("Rolling back %d migration(s)...\n", -n)
	}
	if err := c.migrator.Steps(ctx, n); err != nil {
		return err
	}
	return c.reportVersion(ctx, "Complete.")
}

func (c *CLI) RunGoto(ctx context.Context, version uint) error {
	c.printf("Migrating to version %d...\n", version)
	if err := c.migrator.Goto(ctx, version); err != nil {
		return err
	}
	return c.reportVersion(ctx, "Migration complete.")
}

func (c *CLI) RunForce(ctx context.Context, version int) error {
	c.printf("Forcing version to %d...\n", version)
	if err := c.migrator.Force(ctx, version); err != nil {
		return err
	}
	c.printf("Version forced to %d\n", version)
	return nil
}

func (c *CLI) RunVersion(ctx context.Context) error {
	v, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return err
	}
	if v == 0 && !dirty {
		c.printf("No migrations applied yet.\n")
		return nil
	}
	return c.reportVersion(ctx, "")
}

// RunStatus prints one row per embedded migration followed by a summary.
func (c *CLI) RunStatus(ctx context.Context) error {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	if len(statuses) == 0 {
		c.printf("No migrations found.\n")
		return nil
	}

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATUS")
	for _, s := range statuses {
		state := "pending"
		switch {
		case s.Dirty:
			state = "dirty"
		case s.Applied:
			state = "applied"
		}
		fmt.Fprintf(w, "%06d\t%s\t%s\n", s.Version, s.Name, state)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	c.printf("\nTotal: %d, Applied: %d, Pending: %d\n",
		info.TotalMigrations, info.AppliedMigrations, info.PendingMigrations)
	return nil
}

func (c *CLI) RunInfo(ctx context.Context) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to get info: %w", err)
	}
	c.printf("Migration Information:\n")
	c.printf("  Current Version:    %d\n", info.CurrentVersion)
	c.printf("  Latest Version:     %d\n", info.LatestVersion)
	c.printf("  Dirty:              %v\n", info.Dirty)
	c.printf("  Applied Migrations: %d/%d\n", info.AppliedMigrations, info.TotalMigrations)
	c.printf("  Up To Date:         %v\n", info.UpToDate())
	return nil
}

// RunCheck 部署前检查：Schema 不是最新时返回错误（非零退出码）
func (c *CLI) RunCheck(ctx context.Context) error {
	if err := c.migrator.Check(ctx); err != nil {
		return err
	}
	c.printf("Schema is up to date.\n")
	return nil
}
