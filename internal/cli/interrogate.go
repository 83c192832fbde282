package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"intrapaint/internal/app"
	"intrapaint/internal/backend"
)

func newInterrogateCmd(s *session) *cobra.Command {
	var doc documentFlags

	cmd := &cobra.Command{
		Use:   "interrogate IMAGE",
		Short: "Ask the backend for a prompt describing an area of an image",
		Long: `Sends the generation area of IMAGE to the backend's captioning model and
prints the returned caption. The caption is saved as the prompt for the
next run.`,
		Example: `  intrapaint interrogate photo.png --area 0,0,512,512 --backend webui`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(args[0]); err != nil {
				return err
			}
			ctx := cmd.Context()
			gen, sel, err := backend.Open(ctx, s.cfg, &s.log)
			if err != nil {
				return err
			}
			editor, err := app.NewEditor(gen, s.cfg, &s.log)
			if err != nil {
				return err
			}
			if err := editor.LoadImage(args[0]); err != nil {
				return err
			}
			if err := doc.apply(editor.Document()); err != nil {
				return err
			}

			caption, err := editor.Interrogate(ctx)
			if err != nil {
				return err
			}
			s.cfg.Generation.Prompt = caption
			s.remember(sel.Mode, sel.ServerURL)
			fmt.Fprintln(cmd.OutOrStdout(), caption)
			return nil
		},
	}

	cmd.Flags().StringVar(&doc.area, "area", "", "area to describe as x,y,width,height")
	return cmd
}
