package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/SamMebarek/mlopstest/internal/registry"
	"github.com/spf13/cobra"
)

// registryCmd groups the model registry maintenance commands
func registryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect and manage registered model versions",
	}
	cmd.AddCommand(registryListCmd())
	cmd.AddCommand(registryActivateCmd())
	cmd.AddCommand(registryVerifyCmd())
	cmd.AddCommand(registryDeprecateCmd())
	return cmd
}

func openRegistry(cmd *cobra.Command) (*registry.Registry, *env, error) {
	e, err := setup(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	reg, err := registry.Open(e.cfg.Path(e.cfg.File.Registry.Dir), e.deps.Logger)
	if err != nil {
		e.Close()
		return nil, nil, err
	}
	return reg, e, nil
}

func registryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List model versions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, e, err := openRegistry(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tSTATUS\tREGISTERED\tR2\tMAE\tHASH")
			for _, entry := range reg.List() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.4f\t%.4f\t%s\n",
					entry.Version, entry.Status, entry.RegisteredAt.Format("2006-01-02 15:04:05"),
					entry.Metrics["r2"], entry.Metrics["mae"], shortHash(entry.BinaryHash))
			}
			return w.Flush()
		},
	}
}

func registryActivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate VERSION",
		Short: "Make VERSION the served model",
		Long: `Marks VERSION active. The previously active version becomes shadow and
is kept as the rollback target. Running servers pick the change up on
their next /reload-model.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, e, err := openRegistry(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := reg.VerifyIntegrity(args[0]); err != nil {
				return fmt.Errorf("refusing to activate: %w", err)
			}
			if err := reg.Activate(args[0]); err != nil {
				return err
			}
			fmt.Printf("Activated %s\n", args[0])
			if prev := reg.GetPrevious(); prev != nil {
				fmt.Printf("Previous: %s\n", prev.Version)
			}
			return nil
		},
	}
}

func registryVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [VERSION]",
		Short: "Check artifact hashes (all versions when none is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, e, err := openRegistry(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			versions := args
			if len(versions) == 0 {
				for _, entry := range reg.List() {
					versions = append(versions, entry.Version)
				}
			}

			failed := 0
			for _, v := range versions {
				if err := reg.VerifyIntegrity(v); err != nil {
					fmt.Printf("FAIL %s: %v\n", v, err)
					failed++
					continue
				}
				fmt.Printf("OK   %s\n", v)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d versions failed verification", failed, len(versions))
			}
			return nil
		},
	}
}

func registryDeprecateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deprecate VERSION",
		Short: "Exclude VERSION from the latest-version fallback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, e, err := openRegistry(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := reg.Deprecate(args[0]); err != nil {
				return err
			}
			fmt.Printf("Deprecated %s\n", args[0])
			return nil
		},
	}
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
