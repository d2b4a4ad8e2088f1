package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newNextCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "next TASK",
		Short: "Switch to the next image in the sequence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			reply, err := client.Next(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cursor at %d\n", reply.Cursor)
			return nil
		},
	}
}

func newPrevCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prev TASK",
		Short: "Switch to the previous image in the sequence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			reply, err := client.Prev(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cursor at %d\n", reply.Cursor)
			return nil
		},
	}
}

func newGotoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "goto TASK INDEX_OR_IMAGE",
		Short: "Jump the cursor to an index or a named image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			var reply cursorReply
			if index, convErr := strconv.Atoi(args[1]); convErr == nil {
				reply, err = client.GotoIndex(args[0], index)
			} else {
				reply, err = client.GotoImage(args[0], args[1])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cursor at %d (%s)\n", reply.Cursor, reply.Image)
			return nil
		},
	}
}
