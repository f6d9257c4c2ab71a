package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ehr/clinicehr/internal/permission"
)

func permissionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permissions",
		Short: "Inspect the role permission matrix",
	}
	cmd.AddCommand(permissionsMatrixCmd())
	cmd.AddCommand(permissionsCheckCmd())
	return cmd
}

func permissionsMatrixCmd() *cobra.Command {
	var roleFlag, moduleFlag string
	cmd := &cobra.Command{
		Use:   "matrix",
		Short: "Print the scope of every role, module and operation",
		RunE: func(cmd *cobra.Command, args []string) error {
			roles := permission.Roles()
			if roleFlag != "" {
				role, err := permission.ParseRole(roleFlag)
				if err != nil {
					return err
				}
				roles = []permission.Role{role}
			}
			modules := permission.Modules()
			if moduleFlag != "" {
				module, err := permission.ParseModule(moduleFlag)
				if err != nil {
					return err
				}
				modules = []permission.Module{module}
			}
			printMatrix(cmd.OutOrStdout(), permission.Default(), roles, modules)
			return nil
		},
	}
	cmd.Flags().StringVar(&roleFlag, "role", "", "Only print this role")
	cmd.Flags().StringVar(&moduleFlag, "module", "", "Only print this module")
	return cmd
}

func printMatrix(out io.Writer, r *permission.Resolver, roles []permission.Role, modules []permission.Module) {
	ops := permission.Operations()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := []string{"ROLE", "MODULE"}
	for _, op := range ops {
		header = append(header, strings.ToUpper(string(op)))
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))

	for _, role := range roles {
		for _, module := range modules {
			row := []string{string(role), string(module)}
			for _, op := range ops {
				row = append(row, string(r.PermissionScope(role, module, op)))
			}
			fmt.Fprintln(w, strings.Join(row, "\t"))
		}
	}
	w.Flush()
}

func permissionsCheckCmd() *cobra.Command {
	var roleFlag, moduleFlag, opFlag string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Show the scope one role has for one operation",
		RunE: func(cmd *cobra.Command, args []string) error {
			module, err := permission.ParseModule(moduleFlag)
			if err != nil {
				return err
			}
			op, err := permission.ParseOperation(opFlag)
			if err != nil {
				return err
			}

			// Unknown roles are reported, not rejected: they resolve to none.
			role := permission.Role(roleFlag)
			r := permission.Default()
			scope := r.PermissionScope(role, module, op)

			out := cmd.OutOrStdout()
			verdict := "denied"
			if scope != permission.ScopeNone {
				verdict = "allowed"
			}
			fmt.Fprintf(out, "%s %s %s: %s (scope %s)\n", role, op, module, verdict, scope)
			if !role.Known() {
				fmt.Fprintf(out, "warning: %q is not a known role\n", roleFlag)
			}
			for _, note := range r.ModulePermissions(role, module)[op].Restrictions {
				fmt.Fprintf(out, "  restriction: %s\n", note)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&roleFlag, "role", "", "Role to check")
	cmd.Flags().StringVar(&moduleFlag, "module", "", "Module to check")
	cmd.Flags().StringVar(&opFlag, "operation", "", "Operation: view, add, edit or delete")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("module")
	_ = cmd.MarkFlagRequired("operation")
	return cmd
}
