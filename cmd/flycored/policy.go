package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flycode/flycored/internal/config"
)

func policyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect and validate the policy file",
	}
	cmd.AddCommand(policyShowCmd())
	cmd.AddCommand(policyValidateCmd())
	cmd.AddCommand(policyApplyCmd())
	return cmd
}

func policyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the normalized policy as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := config.Load(resolveConfigHome())
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(p)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func policyValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <patch.yaml>",
		Short: "Validate a runtime policy patch without applying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			current, err := config.Load(resolveConfigHome())
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var patch config.Patch
			if err := yaml.Unmarshal(raw, &patch); err != nil {
				return fmt.Errorf("parse patch: %w", err)
			}
			ok, errs := config.ValidatePatch(current, &patch)
			if ok {
				fmt.Println("patch is valid")
				return nil
			}
			for _, e := range errs {
				fmt.Printf("%s: %s\n", e.Field, e.Message)
			}
			return fmt.Errorf("patch failed validation with %d error(s)", len(errs))
		},
	}
}

func policyApplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply <patch.yaml>",
		Short: "Validate, merge, and persist a runtime policy patch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			live, err := config.NewLivePolicy(resolveConfigHome())
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var patch config.Patch
			if err := yaml.Unmarshal(raw, &patch); err != nil {
				return fmt.Errorf("parse patch: %w", err)
			}
			merged, ok, errs := live.ApplyPatch(&patch)
			if !ok {
				for _, e := range errs {
					fmt.Printf("%s: %s\n", e.Field, e.Message)
				}
				return fmt.Errorf("patch failed validation with %d error(s)", len(errs))
			}
			out, err := yaml.Marshal(merged)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}
