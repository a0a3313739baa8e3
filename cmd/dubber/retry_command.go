package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"dubber/internal/api"
)

func newRetryCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "retry [id]",
		Short: "Resume failed videos from their failed stage",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return fmt.Errorf("provide either a video id or --all")
			}

			return ctx.withClient(func(client *api.Client) error {
				out := cmd.OutOrStdout()
				if all {
					ids, err := client.RetryAll(cmd.Context())
					if err != nil {
						return err
					}
					if len(ids) == 0 {
						fmt.Fprintln(out, "No failed videos to retry")
						return nil
					}
					fmt.Fprintf(out, "Retrying %d video(s)\n", len(ids))
					return nil
				}

				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid video id %q", args[0])
				}
				video, err := client.Retry(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Video %d reset to %s\n", video.ID, video.Status)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Retry every failed video")
	return cmd
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a video from the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid video id %q", args[0])
			}
			return ctx.withClient(func(client *api.Client) error {
				if err := client.Delete(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed video %d\n", id)
				return nil
			})
		},
	}
}
