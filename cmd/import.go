package main

import (
	"encoding/csv"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/venuedex/enrich-cli/internal/gallery"
	"github.com/venuedex/enrich-cli/internal/model"
)

var importCSVPath string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import entities from CSV into the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("status"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		f, err := os.Open(importCSVPath)
		if err != nil {
			return eris.Wrapf(err, "open csv %s", importCSVPath)
		}
		defer f.Close() //nolint:errcheck

		records, err := csv.NewReader(f).ReadAll()
		if err != nil {
			return eris.Wrap(err, "read csv")
		}

		entities := parseEntityCSV(records)

		created, skipped := 0, 0
		for i := range entities {
			if ctx.Err() != nil {
				return eris.Wrap(ctx.Err(), "import cancelled")
			}
			if err := st.CreateEntity(ctx, &entities[i]); err != nil {
				// Slug collisions mean the row was imported before.
				zap.L().Debug("skipping entity",
					zap.String("slug", entities[i].Slug),
					zap.Error(err),
				)
				skipped++
				continue
			}
			created++
		}

		zap.L().Info("import complete",
			zap.Int("created", created),
			zap.Int("skipped", skipped),
			zap.String("csv", importCSVPath),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importCSVPath, "csv", "", "path to CSV file (required)")
	_ = importCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(importCmd)
}

// parseEntityCSV turns header+rows into entities, deduplicating by slug.
// Recognized headers (case-insensitive): name, area, slug, address.
// Rows without a name are dropped; a missing slug is derived from the
// name. The first row is always treated as the header.
func parseEntityCSV(records [][]string) []model.Entity {
	if len(records) < 2 {
		return nil
	}

	col := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}

	field := func(row []string, name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	seen := make(map[string]struct{})
	var out []model.Entity

	for _, row := range records[1:] {
		name := field(row, "name")
		if name == "" {
			continue
		}
		slug := field(row, "slug")
		if slug == "" {
			slug = gallery.Sanitize(name)
		}
		if slug == "" {
			continue
		}
		if _, dup := seen[slug]; dup {
			continue
		}
		seen[slug] = struct{}{}

		out = append(out, model.Entity{
			Slug:    slug,
			Name:    name,
			Area:    field(row, "area"),
			Address: field(row, "address"),
		})
	}
	return out
}
