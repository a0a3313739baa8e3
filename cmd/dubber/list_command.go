package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dubber/internal/api"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued videos",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				videos, err := client.ListVideos(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(videos) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}

				rows := make([][]string, 0, len(videos))
				for _, video := range videos {
					rows = append(rows, []string{
						fmt.Sprintf("%d", video.ID),
						video.Status,
						video.Mode,
						video.TargetLanguage,
						formatProgress(video),
						videoSource(video),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "STATUS", "MODE", "LANG", "PROGRESS", "SOURCE"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVar(&statuses, "status", nil, "Filter by status (repeatable)")
	return cmd
}

func formatProgress(video api.Video) string {
	if video.Progress.Stage == "" {
		return "-"
	}
	return fmt.Sprintf("%.0f%% %s", video.Progress.Percent, video.Progress.Stage)
}

func videoSource(video api.Video) string {
	if video.SourceURL != "" {
		return video.SourceURL
	}
	return video.SourcePath
}
