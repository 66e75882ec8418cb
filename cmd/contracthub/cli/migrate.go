package cli

import (
	"context"
	"fmt"
	"io"
)

// Migrator applies pending schema migrations and returns their versions.
type Migrator func(ctx context.Context) ([]int, error)

// MigrateOptions defines flags for the migrate command.
type MigrateOptions struct {
	Stdout io.Writer
	Stderr io.Writer
}

// MigrateCommand runs migrator and prints the applied versions.
func MigrateCommand(ctx context.Context, migrator Migrator, opts MigrateOptions) int {
	opts.Stdout, opts.Stderr = writers(opts.Stdout, opts.Stderr)
	applied, err := migrator(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "migrate: %v\n", err)
		return 1
	}
	if len(applied) == 0 {
		_, _ = fmt.Fprintln(opts.Stdout, "schema up to date")
		return 0
	}
	for _, v := range applied {
		_, _ = fmt.Fprintf(opts.Stdout, "applied %04d\n", v)
	}
	return 0
}
