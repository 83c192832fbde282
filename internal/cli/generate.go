package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"intrapaint/internal/app"
	"intrapaint/internal/backend"
	"intrapaint/internal/generation"
)

func newGenerateCmd(s *session) *cobra.Command {
	var (
		doc      documentFlags
		outDir   string
		prompt   string
		negative string
		mode     string
		seed     int64
		batch    int
		apply    int
	)

	cmd := &cobra.Command{
		Use:   "generate IMAGE",
		Short: "Generate new content for an area of an image",
		Long: `Sends the generation area of IMAGE to the backend and writes every
returned sample, mapped back to the area, into the output directory.

In inpaint mode only the masked part of the area is regenerated. The mask
is an image the same size as IMAGE; white (or opaque, for images with
transparency) marks the pixels to replace.`,
		Example: `  # Inpaint a 512x512 area using a mask
  intrapaint generate photo.png --mask mask.png --area 100,80,512,512 --prompt "a red door"

  # Apply the first sample and save the whole image
  intrapaint generate photo.png --mode img2img --apply 0 --out results`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(args[0]); err != nil {
				return err
			}
			ctx := cmd.Context()
			flags := cmd.Flags()
			cfg := s.cfg
			if flags.Changed("prompt") {
				cfg.Generation.Prompt = prompt
			}
			if flags.Changed("negative") {
				cfg.Generation.NegativePrompt = negative
			}
			if flags.Changed("mode") {
				cfg.Generation.EditMode = mode
			}
			if flags.Changed("seed") {
				cfg.Generation.Seed = seed
			}
			if flags.Changed("batch") {
				cfg.Generation.BatchSize = batch
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			s.cfg = cfg

			gen, sel, err := backend.Open(ctx, cfg, &s.log)
			if err != nil {
				return err
			}
			editor, err := app.NewEditor(gen, cfg, &s.log)
			if err != nil {
				return err
			}
			if err := editor.LoadImage(args[0]); err != nil {
				return err
			}
			if err := doc.apply(editor.Document()); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			editor.On(app.EventProgress, func(data any) {
				if st, ok := data.(generation.Status); ok {
					s.log.Info().Str("progress", st.Text).Msg("generating")
				}
			})
			editor.On(app.EventSampleReady, func(data any) {
				if smp, ok := data.(app.Sample); ok {
					s.log.Debug().Int("index", smp.Index).Msg("sample received")
				}
			})

			if err := editor.Generate(ctx); err != nil {
				return err
			}
			s.remember(sel.Mode, sel.ServerURL)

			for i, img := range editor.Samples() {
				if img == nil {
					continue
				}
				path, err := writePNG(outDir, fmt.Sprintf("sample-%d.png", i), img)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, path)
			}

			if apply >= 0 {
				if err := editor.ApplySample(apply); err != nil {
					return err
				}
				path, err := writePNG(outDir, "result.png", editor.Document().Flatten())
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
	f.StringVarP(&prompt, "prompt", "p", "", "prompt")
	f.StringVar(&negative, "negative", "", "negative prompt")
	f.StringVar(&mode, "mode", "", "edit mode: txt2img, img2img or inpaint")
	f.Int64Var(&seed, "seed", -1, "seed, -1 for random")
	f.IntVar(&batch, "batch", 0, "images per batch")
	f.IntVar(&apply, "apply", -1, "apply this sample to the image and write result.png")

	return cmd
}
