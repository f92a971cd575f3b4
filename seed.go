package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/returnordie/til-i-allt-sub001/internal/cache"
	"github.com/returnordie/til-i-allt-sub001/internal/seed"
	"github.com/returnordie/til-i-allt-sub001/internal/services"
	"github.com/returnordie/til-i-allt-sub001/internal/validation"
)

func newSeedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert categories and postcodes from a catalog file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := seed.LoadFile(file)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			in, err := connect(ctx, "seed")
			if err != nil {
				return err
			}
			defer in.close()

			v, err := validation.New(services.NewLookup(in.db), in.cfg.PasswordRegexp, validation.Limits{})
			if err != nil {
				return err
			}
			categories := services.NewCategoryService(in.db, in.cfg, v, cache.NewRedisStore(in.rdb))
			res, err := seed.Apply(ctx, catalog, categories, services.NewPostcodeService(in.db))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d categories and %d postcodes\n", res.Categories, res.Postcodes)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "data/catalog.yaml", "Catalog YAML file")
	return cmd
}
