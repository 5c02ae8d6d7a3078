package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/mnistprep/pkg/idx"
	"github.com/gomlx/mnistprep/pkg/mnist"
)

var frameStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("240"))

// render draws the image with two characters per pixel, using the pixel intensity as the
// background color. Terminals without color support get a plain shaded rendering.
func render(raw *mnist.Raw) string {
	const shades = " .:-=+*#%@"
	var sb strings.Builder
	for y := range idx.Rows {
		for x := range idx.Cols {
			v := raw.Pixel(x, y)
			shade := string(shades[int(v)*(len(shades)-1)/255])
			cell := lipgloss.NewStyle().
				Background(lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", v, v, v))).
				Render(strings.Repeat(shade, 2))
			sb.WriteString(cell)
		}
		if y < idx.Rows-1 {
			sb.WriteByte('\n')
		}
	}
	return frameStyle.Render(sb.String()) + "\n"
}
