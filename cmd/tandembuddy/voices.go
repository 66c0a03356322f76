package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrWong99/tandembuddy/internal/app"
)

func newVoicesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List the voices offered by the configured TTS provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listVoices(cmd.Context(), g, cmd.OutOrStdout())
		},
	}
}

func listVoices(ctx context.Context, g *globals, out io.Writer) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	ps, err := providers(cfg)
	if err != nil {
		return err
	}
	application, err := app.New(ctx, cfg, ps)
	if err != nil {
		return err
	}
	defer application.Shutdown(context.WithoutCancel(ctx))

	voices, err := application.Speech().Voices(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPROVIDER")
	for _, v := range voices {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", v.ID, v.Name, v.Provider)
	}
	return tw.Flush()
}
