package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newImagesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "images TASK",
		Short: "List a task's image sequence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			list, err := client.Images(args[0])
			if err != nil {
				return err
			}
			if len(list.Images) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No images.")
				return nil
			}
			for i, name := range list.Images {
				marker := " "
				if i == list.Cursor {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %3d  %s\n", marker, i, name)
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "rm TASK IMAGE",
		Short: "Remove an image from a task's sequence",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.RemoveImage(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from %s\n", args[1], args[0])
			return nil
		},
	})
	return cmd
}

func newUploadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "upload TASK FILE...",
		Short: "Upload one or more images to a task's sequence",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			ref := args[0]
			for _, path := range args[1:] {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				list, err := client.Upload(ref, filepath.Base(path), data)
				if err != nil {
					return fmt.Errorf("upload %s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s (%d images)\n", filepath.Base(path), len(list.Images))
			}
			return nil
		},
	}
}
