package seeds

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/boazomare1/school-managementKE-sub001/internals/seeds/invoices"
)

// RunAllSeeds jalankan semua seeder dari dir (default internals/seeds).
func RunAllSeeds(ctx context.Context, m invoices.InvoiceCreator, dir string, log zerolog.Logger) error {
	if dir == "" {
		dir = "internals/seeds"
	}

	//* Invoices
	n, err := invoices.SeedInvoicesFromJSON(ctx, m, filepath.Join(dir, "invoices", "data_invoices.json"), log)
	if err != nil {
		return err
	}
	log.Info().Int("created", n).Msg("invoice seeds done")
	return nil
}
