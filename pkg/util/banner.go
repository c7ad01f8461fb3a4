package util

import (
	"fmt"
	"io"

	"github.com/common-nighthawk/go-figure"
)

// 定义颜色常量
const (
	ColorReset  = "\x1b[0m"
	ColorRed    = "\x1b[1;31m"
	ColorGreen  = "\x1b[1;32m"
	ColorYellow = "\x1b[1;33m"
	ColorBlue   = "\x1b[1;34m"
	ColorCyan   = "\x1b[1;36m"
)

// colorCode 颜色名转 ANSI 颜色码，未知名称不着色
func colorCode(name string) string {
	switch name {
	case "red":
		return ColorRed
	case "green":
		return ColorGreen
	case "yellow":
		return ColorYellow
	case "blue":
		return ColorBlue
	case "cyan":
		return ColorCyan
	default:
		return ""
	}
}

// PrintBanner 输出整体统一颜色的 ASCII banner，subtitle 非空时追加一行
func PrintBanner(w io.Writer, text, subtitle, color string) {
	lines := figure.NewFigure(text, "", true).Slicify()

	ansi := colorCode(color)
	reset := ""
	if ansi != "" {
		reset = ColorReset
	}
	for _, line := range lines {
		_, _ = fmt.Fprintln(w, ansi+line+reset)
	}
	if subtitle != "" {
		_, _ = fmt.Fprintln(w, subtitle)
	}
}
