package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"intrapaint/internal/app"
	"intrapaint/internal/backend"
)

func newUpscaleCmd(s *session) *cobra.Command {
	var (
		outDir        string
		width, height int
	)

	cmd := &cobra.Command{
		Use:   "upscale IMAGE",
		Short: "Resize an image, using the backend's upscaler when enlarging",
		Long: `Resizes IMAGE to --width x --height and writes upscaled.png to the output
directory. Enlargements are sent to the backend when it has an upscaler;
otherwise the image is resized locally.`,
		Example: `  intrapaint upscale photo.png --width 2048 --height 2048 --backend webui`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(args[0]); err != nil {
				return err
			}
			if width <= 0 || height <= 0 {
				return errors.New("--width and --height must be positive")
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
			if err := editor.Upscale(ctx, width, height); err != nil {
				return err
			}
			s.remember(sel.Mode, sel.ServerURL)

			path, err := writePNG(outDir, "upscaled.png", editor.Document().Flatten())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&outDir, "out", "o", ".", "output directory")
	f.IntVar(&width, "width", 0, "target width")
	f.IntVar(&height, "height", 0, "target height")
	_ = cmd.MarkFlagRequired("width")
	_ = cmd.MarkFlagRequired("height")

	return cmd
}
