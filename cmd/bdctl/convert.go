package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/browndog-tests/internal/usecase"
)

func newConvertCmd(g *globalFlags) *cobra.Command {
	var upload, keep bool
	cmd := &cobra.Command{
		Use:   "convert SOURCE FORMAT",
		Short: "Convert a URL or local file and download the result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, g, func(ctx context.Context, s session) error {
				svc := usecase.NewConversionService(s.client, s.token, s.cfg.Scratch(), s.cfg.ProcessingPolicy(), s.cfg.DownloadPolicy())
				svc.KeepArtifacts = keep
				res, err := svc.Run(ctx, usecase.ConversionRequest{Source: args[0], Format: args[1], Upload: upload})
				rows := [][2]any{
					{"Job", res.Job.ID},
					{"State", res.Job.State},
					{"Result URL", res.ResultURL},
					{"Size", fmt.Sprintf("%d bytes", res.Size)},
					{"Attempts", res.Attempts},
				}
				if keep {
					rows = append(rows, [2]any{"Path", res.Path})
				}
				printKV(cmd.OutOrStdout(), rows)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&upload, "upload", false, "fetch a remote SOURCE first and send it as a file upload")
	cmd.Flags().BoolVar(&keep, "keep", false, "leave the downloaded artifact in the scratch directory")
	return cmd
}
