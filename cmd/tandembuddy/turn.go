package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/tandembuddy/internal/app"
	"github.com/MrWong99/tandembuddy/internal/conversation"
)

type turnOptions struct {
	audioPath string
	outPath   string
	feedback  bool
}

func newTurnCmd(g *globals) *cobra.Command {
	var opts turnOptions
	cmd := &cobra.Command{
		Use:   "turn",
		Short: "Run a single conversation turn from a recording",
		Long: "Transcribes the recording, asks the partner for a reply and " +
			"synthesizes it, then prints both transcriptions.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTurn(cmd.Context(), g, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&opts.audioPath, "audio", "a", "", "recording to submit (required)")
	cmd.Flags().StringVarP(&opts.outPath, "out", "o", "", "write the synthesized reply here")
	cmd.Flags().BoolVar(&opts.feedback, "feedback", false, "print the partner's assessment after the turn")
	_ = cmd.MarkFlagRequired("audio")
	return cmd
}

func runTurn(ctx context.Context, g *globals, opts turnOptions, out io.Writer) error {
	recording, err := os.ReadFile(opts.audioPath)
	if err != nil {
		return fmt.Errorf("read recording: %w", err)
	}

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

	sess := application.Session()
	sess.ToggleTranscriptions()
	res, err := sess.SubmitTurn(ctx, recording)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, res.Transcriptions)

	if opts.outPath != "" {
		if err := copyReply(res.History, opts.outPath); err != nil {
			return err
		}
		fmt.Fprintf(out, "reply written to %s\n", opts.outPath)
	}

	if opts.feedback {
		fb, err := sess.GenerateFeedback(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, fb)
	}
	return nil
}

// copyReply copies the assistant audio of the last turn in history to dst.
func copyReply(history []conversation.HistoryEntry, dst string) error {
	var src string
	for _, e := range history {
		if e.Role == conversation.RoleAssistant && e.IsAudio() {
			src = e.AudioPath
		}
	}
	if src == "" {
		return fmt.Errorf("no reply audio in history")
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	return nil
}
