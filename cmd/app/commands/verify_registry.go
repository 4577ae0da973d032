package commands

import (
	"context"
	"fmt"

	"github.com/allisson/authgate/internal/app"
	"github.com/allisson/authgate/internal/config"
)

// RunVerifyRegistry loads and validates the configured issuer registry and
// prints a short summary. A non-nil error means the registry would also be
// rejected at server start.
func RunVerifyRegistry(ctx context.Context, io IOTuple) error {
	cfg := config.Load()
	container := app.NewContainer(cfg)
	logger := container.Logger()
	defer closeContainer(container, logger)

	reg, err := container.Registry(ctx)
	if err != nil {
		return err
	}

	serving := reg.Serving()
	fmt.Fprintf(io.Writer, "registry ok: %d issuers\n", reg.Len())
	fmt.Fprintf(io.Writer, "serving issuer: %s (%d keys)\n", serving.Name, len(serving.Keys))
	fmt.Fprintf(io.Writer, "logs collection: %s\n", serving.LogsCollection)
	fmt.Fprintf(io.Writer, "stats collection: %s\n", serving.StatsCollection)
	return nil
}
