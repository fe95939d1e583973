package chat

import "github.com/gookit/color"

// namePalette is the set of display-name colors handed out round-robin
// in accept order: cyan, green, yellow, magenta, blue.
var namePalette = []color.Color{
	color.FgCyan,
	color.FgGreen,
	color.FgYellow,
	color.FgMagenta,
	color.FgBlue,
}
