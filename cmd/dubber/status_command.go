package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"dubber/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				lines := renderSectionHeader("Dubber Status", colorize)

				runningKind := statusError
				runningMsg := "stopped"
				if status.Running {
					runningKind = statusOK
					runningMsg = "running"
				}
				lines = append(lines, renderStatusLine("Workflow", runningKind, runningMsg, colorize))
				if status.LastError != "" {
					lines = append(lines, renderStatusLine("Last error", statusWarn, status.LastError, colorize))
				}
				if status.LastVideo != nil {
					lines = append(lines, renderStatusLine("Last video", statusInfo,
						fmt.Sprintf("#%d %s", status.LastVideo.ID, status.LastVideo.Status), colorize))
				}

				queue := status.Queue
				lines = append(lines, renderStatusLine("Queue", statusInfo,
					fmt.Sprintf("%d total, %d pending, %d processing, %d failed, %d completed",
						queue.Total, queue.Pending, queue.Processing, queue.Failed, queue.Completed), colorize))

				if len(status.StageHealth) > 0 {
					health := append([]api.StageHealth(nil), status.StageHealth...)
					sort.Slice(health, func(i, j int) bool { return health[i].Name < health[j].Name })
					lines = append(lines, "")
					lines = append(lines, renderSectionHeader("Stage Health", colorize)...)
					for _, stage := range health {
						kind := statusOK
						message := "ready"
						if !stage.Ready {
							kind = statusError
							message = stage.Detail
							if message == "" {
								message = "not ready"
							}
						}
						lines = append(lines, renderStatusLine(stage.Name, kind, message, colorize))
					}
				}

				fmt.Fprintln(out, strings.Join(lines, "\n"))
				return nil
			})
		},
	}
}
