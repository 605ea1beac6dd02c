package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/phasegate/internal/workflow"
)

// projectArg returns the optional positional project name.
func projectArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

var statusCmd = &cobra.Command{
	Use:   "status [project]",
	Short: "Show a project's phases, current tasks and approval preview",
	Long:  `Show a project's phases, current tasks and approval preview. Without a name the most recently active project is shown.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService()
		if err != nil {
			return err
		}
		defer cleanup()

		name, err := svc.Resolve(cmd.Context(), projectArg(args))
		if err != nil {
			return err
		}
		snap, err := svc.Status(cmd.Context(), name)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), snap)
		}
		renderStatus(cmd.OutOrStdout(), snap)
		return nil
	},
}

var activeCmd = &cobra.Command{
	Use:   "active",
	Short: "Print the most recently active project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService()
		if err != nil {
			return err
		}
		defer cleanup()

		p, err := svc.FindActive(cmd.Context())
		if err != nil {
			return err
		}
		if p == nil {
			return workflow.ErrNoActiveProject
		}
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), p)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (phase %s)\n", p.Name, p.CurrentPhase)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService()
		if err != nil {
			return err
		}
		defer cleanup()

		ps, err := svc.List(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), ps)
		}
		renderProjects(cmd.OutOrStdout(), ps)
		return nil
	},
}

var specialistsCmd = &cobra.Command{
	Use:   "specialists [project]",
	Short: "List the specialist roles a project's signals call for",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService()
		if err != nil {
			return err
		}
		defer cleanup()

		name, err := svc.Resolve(cmd.Context(), projectArg(args))
		if err != nil {
			return err
		}
		roles, err := svc.Specialists(cmd.Context(), name)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), roles)
		}
		for _, r := range roles {
			fmt.Fprintln(cmd.OutOrStdout(), r)
		}
		return nil
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive <project>",
	Short: "Archive a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService()
		if err != nil {
			return err
		}
		defer cleanup()

		p, err := svc.Archive(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s archived\n", p.Name)
		return nil
	},
}

var unarchiveCmd = &cobra.Command{
	Use:   "unarchive <project>",
	Short: "Restore an archived project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := openService()
		if err != nil {
			return err
		}
		defer cleanup()

		p, err := svc.Unarchive(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s restored (%s)\n", p.Name, p.Status)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, activeCmd, listCmd, specialistsCmd, archiveCmd, unarchiveCmd)
}
