package outline

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"
)

// Theme color names used by the outline.
const (
	ColorNameOutline      fyne.ThemeColorName = "intrapaintOutline"
	ColorNameHandle       fyne.ThemeColorName = "intrapaintHandle"
	ColorNameActiveHandle fyne.ThemeColorName = "intrapaintActiveHandle"
)

// Theme is the default fyne theme plus the outline colors.
type Theme struct{}

var _ fyne.Theme = (*Theme)(nil)

func (t *Theme) Color(name fyne.ThemeColorName, variant fyne.ThemeVariant) color.Color {
	switch name {
	case ColorNameOutline:
		if variant == theme.VariantLight {
			return color.NRGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xFF}
		}
		return color.NRGBA{R: 0xE0, G: 0xE0, B: 0xE0, A: 0xFF}
	case ColorNameHandle:
		return color.NRGBA{R: 0x1E, G: 0x88, B: 0xE5, A: 0xFF}
	case ColorNameActiveHandle:
		return color.NRGBA{R: 0xFF, G: 0xD5, B: 0x00, A: 0x80}
	case theme.ColorNameScrollBar:
		return color.NRGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xFF}
	default:
		return theme.DefaultTheme().Color(name, variant)
	}
}

func (t *Theme) Font(style fyne.TextStyle) fyne.Resource {
	return theme.DefaultTheme().Font(style)
}

func (t *Theme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return theme.DefaultTheme().Icon(name)
}

func (t *Theme) Size(name fyne.ThemeSizeName) float32 {
	return theme.DefaultTheme().Size(name)
}

// colorFor resolves name from the widget's theme, using fallback when the
// theme does not define it.
func colorFor(w fyne.Widget, name, fallback fyne.ThemeColorName) color.Color {
	c := theme.ColorForWidget(name, w)
	if c == nil {
		return theme.ColorForWidget(fallback, w)
	}
	if _, _, _, a := c.RGBA(); a == 0 {
		return theme.ColorForWidget(fallback, w)
	}
	return c
}
