// Delete every job from the database at DATABASE_URL.
package main

import (
	"log/slog"
	"os"

	"github.com/flusio/minz-worker/setup"
	"github.com/flusio/minz-worker/test"
)

func main() {
	if err := setup.DB(setup.DefaultConnection, 1); err != nil {
		slog.Error("could not connect to the database", "err", err)
		os.Exit(1)
	}
	if err := test.TruncateTables(nil); err != nil {
		slog.Error("could not truncate tables", "err", err)
		os.Exit(1)
	}
}
