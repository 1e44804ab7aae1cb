package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/browndog-tests/internal/domain"
	"github.com/fairyhunter13/browndog-tests/internal/usecase"
)

func newExtractCmd(g *globalFlags) *cobra.Command {
	var extractor, expect string
	cmd := &cobra.Command{
		Use:   "extract FILE_URL",
		Short: "Extract metadata from a remote file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, g, func(ctx context.Context, s session) error {
				svc := usecase.NewExtractionService(s.client, s.client, s.token, s.cfg.ProcessingPolicy())
				res, err := svc.Run(ctx, usecase.ExtractionRequest{FileURL: args[0], Extractor: extractor})
				printKV(cmd.ErrOrStderr(), [][2]any{
					{"Job", res.Job.ID},
					{"State", res.Job.State},
					{"File", res.FileID},
					{"Attempts", res.Attempts},
				})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), res.Metadata)
				if expect == "" {
					return nil
				}
				ok, _, err := svc.ContainsExpected(ctx, res.Metadata, expect)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%w: metadata does not contain %q", domain.ErrService, expect)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&extractor, "extractor", usecase.AllExtractors, "extractor to run")
	cmd.Flags().StringVar(&expect, "expect", "", "text or URL whose content must appear in the metadata")
	return cmd
}
