// Command graphorm inspects the storage of a graphorm data source.
//
//	graphorm --config graphorm.yaml ping
//	graphorm --config graphorm.yaml meta
//	graphorm ddl --dialect postgres
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"reflect"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/syssam/graphorm"
	"github.com/syssam/graphorm/dialect"
	"github.com/syssam/graphorm/dialect/sql"
	"github.com/syssam/graphorm/dialect/sql/migrate"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}
	if err := newApp(os.Stdout).Run(context.Background(), args); err != nil {
		log.Fatal(err)
	}
}

func newApp(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "graphorm",
		Usage: "Inspect graphorm storage",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "graphorm.yaml",
				Usage:   "backend configuration file",
				Sources: cli.EnvVars("GRAPHORM_CONFIG"),
			},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "log statements"},
		},
		Commands: []*cli.Command{
			pingCommand(out),
			metaCommand(out),
			ddlCommand(out),
		},
	}
}

func pingCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "ping",
		Usage: "Open the configured backend",
		Action: func(ctx context.Context, c *cli.Command) error {
			b, err := openBackend(ctx, c)
			if err != nil {
				return err
			}
			defer b.Close()
			_, err = fmt.Fprintf(out, "%s: ok\n", b.Dialect())
			return err
		},
	}
}

func metaCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "meta",
		Usage: "Print the stored metadata record",
		Action: func(ctx context.Context, c *cli.Command) error {
			b, err := openBackend(ctx, c)
			if err != nil {
				return err
			}
			defer b.Close()
			// The data source is not opened, so nothing is created.
			ds, err := graphorm.New(b, graphorm.WithLogger(logger(c)))
			if err != nil {
				return err
			}
			m, err := ds.Meta(ctx)
			if graphorm.IsNotFound(err) {
				_, err = fmt.Fprintln(out, "not versioned")
				return err
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "format: %d\nversion: %d\n", m.ORMVersion, m.DBVersion)
			return err
		},
	}
}

func ddlCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "ddl",
		Usage: "Print the DDL of the metadata table",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dialect", Value: dialect.SQLite, Usage: "sqlite, postgres or mysql"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			name := c.String("dialect")
			switch name {
			case dialect.SQLite, dialect.Postgres, dialect.MySQL:
			default:
				return fmt.Errorf("unknown dialect %q", name)
			}
			b := sql.New(name, "")
			ds, err := graphorm.New(b)
			if err != nil {
				return err
			}
			meta, _ := ds.Registry().Lookup(reflect.TypeOf(graphorm.Meta{}))
			stmts := migrate.CreateStatements(meta, b)
			_, err = fmt.Fprintln(out, strings.Join(stmts, ";\n")+";")
			return err
		},
	}
}

func openBackend(ctx context.Context, c *cli.Command) (*sql.Backend, error) {
	cfg, err := sql.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	opts := []sql.Option{sql.WithLogger(logger(c))}
	if c.Bool("verbose") {
		opts = append(opts, sql.WithDebug())
	}
	b := cfg.Backend(opts...)
	if err := b.Open(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func logger(c *cli.Command) *slog.Logger {
	level := slog.LevelWarn
	if c.Bool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
