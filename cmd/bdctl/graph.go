package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newGraphCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "List the formats and converters the deployment knows",
	}
	list := func(use, short string, all, one func(ctx context.Context, s session, format string) ([]string, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withSession(cmd, g, func(ctx context.Context, s session) error {
					var (
						items []string
						err   error
					)
					if len(args) == 1 && one != nil {
						items, err = one(ctx, s, args[0])
					} else {
						items, err = all(ctx, s, "")
					}
					if err != nil {
						return err
					}
					if len(items) > 0 {
						fmt.Fprintln(cmd.OutOrStdout(), strings.Join(items, "\n"))
					}
					return nil
				})
			},
		}
	}
	cmd.AddCommand(
		list("outputs", "List every output format", func(ctx context.Context, s session, _ string) ([]string, error) {
			return s.client.Outputs(ctx, s.token)
		}, nil),
		list("inputs [OUTPUT]", "List input formats, optionally those converting into OUTPUT",
			func(ctx context.Context, s session, _ string) ([]string, error) { return s.client.Inputs(ctx, s.token) },
			func(ctx context.Context, s session, f string) ([]string, error) {
				return s.client.InputsFor(ctx, s.token, f)
			}),
		list("converters [INPUT]", "List conversion paths, optionally only those from INPUT",
			func(ctx context.Context, s session, _ string) ([]string, error) {
				return s.client.Converters(ctx, s.token)
			},
			func(ctx context.Context, s session, f string) ([]string, error) {
				return s.client.ConvertersFor(ctx, s.token, f)
			}),
	)
	return cmd
}
