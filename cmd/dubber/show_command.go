package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"dubber/internal/api"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show details for one video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid video id %q", args[0])
			}

			return ctx.withClient(func(client *api.Client) error {
				video, err := client.GetVideo(cmd.Context(), id)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Video %d\n", video.ID)
				fmt.Fprintf(out, "  Source:     %s\n", videoSource(video))
				fmt.Fprintf(out, "  Status:     %s\n", video.Status)
				fmt.Fprintf(out, "  Mode:       %s\n", video.Mode)
				fmt.Fprintf(out, "  Target:     %s\n", video.TargetLanguage)
				if video.SourceLanguage != "" {
					fmt.Fprintf(out, "  Source lang: %s\n", video.SourceLanguage)
				}
				if video.DurationSeconds > 0 {
					fmt.Fprintf(out, "  Duration:   %.1fs\n", video.DurationSeconds)
				}
				if video.ChunkSeconds > 0 {
					fmt.Fprintf(out, "  Chunk size: %ds\n", video.ChunkSeconds)
				}
				if video.Progress.Stage != "" {
					fmt.Fprintf(out, "  Progress:   %s\n", formatProgress(video))
				}
				if video.Progress.Message != "" {
					fmt.Fprintf(out, "  Detail:     %s\n", video.Progress.Message)
				}
				if video.ErrorMessage != "" {
					fmt.Fprintf(out, "  Error:      %s\n", video.ErrorMessage)
				}
				if video.FinalFile != "" {
					fmt.Fprintf(out, "  Final file: %s\n", video.FinalFile)
				}
				if video.CreatedAt != "" {
					fmt.Fprintf(out, "  Created:    %s\n", video.CreatedAt)
				}
				if video.UpdatedAt != "" {
					fmt.Fprintf(out, "  Updated:    %s\n", video.UpdatedAt)
				}
				return nil
			})
		},
	}
}
