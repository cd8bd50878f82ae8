package journal

import (
	"context"
	"fmt"

	"crawlfetch/internal/shared"
)

// Drivers accepted by Open.
const (
	DriverNone     = "none"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects and configures a journal backend.
type Options struct {
	Driver     string
	SQLitePath string
	PGDSN      string
}

// Open returns the journal for opts.Driver. An empty driver means none.
func Open(ctx context.Context, opts Options) (Journal, error) {
	switch opts.Driver {
	case "", DriverNone:
		return Nop{}, nil
	case DriverSQLite:
		return OpenSQLite(ctx, opts.SQLitePath)
	case DriverPostgres:
		return OpenPostgres(ctx, opts.PGDSN)
	default:
		return nil, fmt.Errorf("%w: unknown journal driver %q", shared.ErrValidation, opts.Driver)
	}
}
