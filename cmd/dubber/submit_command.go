package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"dubber/internal/api"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var targetLang string
	var sourceLang string
	var mode string

	cmd := &cobra.Command{
		Use:   "submit <url-or-path>",
		Short: "Queue a video for dubbing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := strings.TrimSpace(args[0])
			if source == "" {
				return fmt.Errorf("source is required")
			}

			req := api.SubmitRequest{
				TargetLanguage: targetLang,
				SourceLanguage: sourceLang,
				Mode:           mode,
			}
			if isRemoteSource(source) {
				req.SourceURL = source
			} else {
				abs, err := filepath.Abs(source)
				if err != nil {
					return fmt.Errorf("resolve source path: %w", err)
				}
				req.SourcePath = abs
			}

			return ctx.withClient(func(client *api.Client) error {
				video, err := client.Submit(cmd.Context(), req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued video %d (%s mode, target %s)\n", video.ID, video.Mode, video.TargetLanguage)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&targetLang, "lang", "l", "", "Target language code")
	cmd.Flags().StringVar(&sourceLang, "source-lang", "", "Source language code (detected when omitted)")
	cmd.Flags().StringVar(&mode, "mode", "", "Processing mode: chunked or linear")
	_ = cmd.MarkFlagRequired("lang")
	return cmd
}

func isRemoteSource(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}
