package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"intrapaint/internal/app"
	"intrapaint/internal/image"
)

func newStageCmd(s *session) *cobra.Command {
	var (
		doc    documentFlags
		outDir string
		mode   string
	)

	cmd := &cobra.Command{
		Use:   "stage IMAGE",
		Short: "Write the image and mask a backend would receive",
		Long: `Runs the staging pipeline over the generation area of IMAGE without
contacting a backend, and writes staged.png (and staged-mask.png in inpaint
mode) to the output directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(args[0]); err != nil {
				return err
			}
			cfg := s.cfg
			if mode != "" {
				cfg.Generation.EditMode = mode
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			layer, err := image.Load(args[0])
			if err != nil {
				return err
			}
			document := image.NewDocumentFromLayer(layer)
			if err := doc.apply(document); err != nil {
				return err
			}
			prepared, err := app.Stage(document, cfg)
			if err != nil {
				return err
			}
			s.log.Info().Stringer("area", document.GenerationArea()).
				Stringer("crop", prepared.Crop()).
				Stringer("size", prepared.Image.Bounds().Size()).
				Msg("staged")

			out := cmd.OutOrStdout()
			path, err := writePNG(outDir, "staged.png", prepared.Image)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, path)
			if prepared.Mask != nil {
				path, err := writePNG(outDir, "staged-mask.png", prepared.Mask)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, path)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&doc.mask, "mask", "", "inpainting mask image")
	f.StringVar(&doc.area, "area", "", "generation area as x,y,width,height")
	f.StringVarP(&outDir, "out", "o", ".", "output directory")
	f.StringVar(&mode, "mode", "", "edit mode: txt2img, img2img or inpaint")

	return cmd
}
