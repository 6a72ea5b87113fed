package cmd

import (
	"bufio"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/podfs/podfs-go/internal/tokens"
)

func newContainerCommand(a *app) *cobra.Command {
	container := &cobra.Command{
		Use:   "container",
		Short: "Manage containers",
	}
	container.AddCommand(&cobra.Command{
		Use:   "create NAME",
		Short: "Create a container unless it already exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			created, err := c.CreateContainer(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", c.ContainerURL(args[0]))
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "exists %s\n", c.ContainerURL(args[0]))
			}
			return nil
		},
	})
	return container
}

// tokenArgs returns the tokens given after the container and file, or the
// lines of stdin when there are none.
func tokenArgs(cmd *cobra.Command, args []string) ([]any, error) {
	if len(args) > 2 {
		out := make([]any, 0, len(args)-2)
		for _, tok := range args[2:] {
			out = append(out, tok)
		}
		return out, nil
	}

	var out []any
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		out = append(out, scanner.Text())
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read tokens from stdin: %w", err)
	}
	return out, nil
}

func newPublishCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "publish CONTAINER FILE [TOKEN...]",
		Short: "Replace a file with the given tokens",
		Long: `Replace a file with the given tokens, one per line.
Without tokens on the command line they are read from stdin, one per line.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			data, err := tokenArgs(cmd, args)
			if err != nil {
				return err
			}
			return c.PublishData(cmd.Context(), args[0], args[1], data)
		},
	}
}

func newReadCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "read CONTAINER FILE",
		Short: "Print the tokens of a file, one per line",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			data, err := c.ReadData(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), tokens.Encode(data))
			return err
		},
	}
}

func newUpdateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "update CONTAINER FILE [TOKEN...]",
		Short: "Append tokens to a file",
		Long: `Append tokens to a file, creating it when missing.
Without tokens on the command line they are read from stdin, one per line.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			data, err := tokenArgs(cmd, args)
			if err != nil {
				return err
			}
			return c.UpdateData(cmd.Context(), args[0], args[1], data)
		},
	}
}

func newListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ls [CONTAINER]",
		Short: "List the members of a container",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			members, err := c.ListContainer(cmd.Context(), name)
			if err != nil {
				return err
			}
			for _, m := range members {
				if m.IsContainer {
					fmt.Fprintln(cmd.OutOrStdout(), m.Name+"/")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), m.Name)
				}
			}
			return nil
		},
	}
}

func newRemoveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm CONTAINER [FILE]",
		Short: "Delete a file, or an empty container when no file is given",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			if len(args) == 2 {
				return c.DeleteResource(cmd.Context(), args[0], args[1])
			}
			return c.DeleteContainer(cmd.Context(), args[0])
		},
	}
}
