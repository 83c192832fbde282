package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"intrapaint/internal/backend"
	"intrapaint/internal/generation"
)

func newHealthCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Find a generation backend and report whether it responds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			gen, sel, err := backend.Open(ctx, s.cfg, &s.log)
			if err != nil {
				return err
			}
			if hc, ok := gen.(generation.HealthChecker); ok && !hc.HealthCheck(ctx) {
				return fmt.Errorf("%s backend at %s is not responding", sel.Mode, sel.ServerURL)
			}
			s.remember(sel.Mode, sel.ServerURL)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", sel.Mode, sel.ServerURL)
			return nil
		},
	}
}
