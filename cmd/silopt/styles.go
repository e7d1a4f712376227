package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Pastel / adaptive lipgloss styles. Color is disabled with NO_COLOR or
// the no-color option. Initialized via initStyles.
var (
	styleBold     lipgloss.Style
	styleFaint    lipgloss.Style
	styleNumber   lipgloss.Style
	styleArgument lipgloss.Style
	styleFlag     lipgloss.Style
	styleCommand  lipgloss.Style
	styleFunc     lipgloss.Style
	styleHeader   lipgloss.Style
	styleInfo     lipgloss.Style
	styleSuccess  lipgloss.Style
	styleWarning  lipgloss.Style
	styleError    lipgloss.Style
	styleSubtle   lipgloss.Style
	styleArrow    lipgloss.Style
	stylePkg      lipgloss.Style
	styleRecv     lipgloss.Style
	styleMethod   lipgloss.Style
	stylePointer  lipgloss.Style
	styleLinkage  lipgloss.Style
)

func initStyles(plain bool, theme string) {
	if plain {
		reset := lipgloss.NewStyle()
		styleBold = lipgloss.NewStyle().Bold(true)
		styleFaint = reset
		styleNumber = reset
		styleArgument = reset
		styleFlag = reset
		styleCommand = lipgloss.NewStyle().Bold(true)
		styleFunc = reset
		styleHeader = lipgloss.NewStyle().Bold(true)
		styleInfo = reset
		styleSuccess = reset
		styleWarning = reset
		styleError = reset
		styleSubtle = reset
		styleArrow = reset
		stylePkg = reset
		styleRecv = reset
		styleMethod = reset
		stylePointer = reset
		styleLinkage = reset
		return
	}
	lipgloss.SetHasDarkBackground(!strings.EqualFold(theme, "light"))

	pastelBlue := lipgloss.AdaptiveColor{Light: "#3366cc", Dark: "#8fb3ff"}
	pastelTeal := lipgloss.AdaptiveColor{Light: "#2b7a78", Dark: "#7ad1c4"}
	pastelLav := lipgloss.AdaptiveColor{Light: "#6d5fa6", Dark: "#b7a9ff"}
	pastelRose := lipgloss.AdaptiveColor{Light: "#ad5d7d", Dark: "#ffb3c9"}
	pastelGold := lipgloss.AdaptiveColor{Light: "#b58b00", Dark: "#ffd666"}
	pastelGreen := lipgloss.AdaptiveColor{Light: "#2f7d32", Dark: "#9ada9f"}
	pastelGray := lipgloss.AdaptiveColor{Light: "#6b6f76", Dark: "#9aa0aa"}
	pastelEdge := lipgloss.AdaptiveColor{Light: "#7a7f88", Dark: "#aab2bd"}
	pastelPkg := lipgloss.AdaptiveColor{Light: "#4a6892", Dark: "#87a7d9"}
	pastelRecv := lipgloss.AdaptiveColor{Light: "#7b5d8e", Dark: "#bfa3d6"}
	pastelPtr := lipgloss.AdaptiveColor{Light: "#9d7a00", Dark: "#d8b74a"}

	styleBold = lipgloss.NewStyle().Bold(true)
	styleFaint = lipgloss.NewStyle().Foreground(pastelGray)
	styleSubtle = lipgloss.NewStyle().Foreground(pastelGray)
	styleNumber = lipgloss.NewStyle().Foreground(pastelGold).Bold(true)
	styleArgument = lipgloss.NewStyle().Foreground(pastelTeal)
	styleFlag = lipgloss.NewStyle().Foreground(pastelLav)
	styleCommand = lipgloss.NewStyle().Foreground(pastelBlue).Bold(true)
	styleFunc = lipgloss.NewStyle().Foreground(pastelLav)
	styleHeader = lipgloss.NewStyle().Foreground(pastelBlue).Bold(true)
	styleInfo = lipgloss.NewStyle().Foreground(pastelTeal)
	styleSuccess = lipgloss.NewStyle().Foreground(pastelGreen)
	styleWarning = lipgloss.NewStyle().Foreground(pastelGold).Bold(true)
	styleError = lipgloss.NewStyle().Foreground(pastelRose).Bold(true)
	styleArrow = lipgloss.NewStyle().Foreground(pastelEdge)
	stylePkg = lipgloss.NewStyle().Foreground(pastelPkg)
	styleRecv = lipgloss.NewStyle().Foreground(pastelRecv)
	styleMethod = lipgloss.NewStyle().Foreground(pastelTeal).Bold(true)
	stylePointer = lipgloss.NewStyle().Foreground(pastelPtr)
	styleLinkage = lipgloss.NewStyle().Foreground(pastelGray).Italic(true)
}

// semanticColorFunc colors a function name semantically (pkg, receiver,
// method). Names that are not Go qualified names are colored as a
// whole.
func semanticColorFunc(full string) string {
	if full == "" {
		return full
	}
	lastDot := strings.LastIndex(full, ".")
	if lastDot == -1 {
		return styleMethod.Render(full)
	}
	pkgPath := full[:lastDot]
	rest := full[lastDot+1:]
	if strings.HasPrefix(pkgPath, "(") {
		if end := strings.LastIndex(pkgPath, ")"); end != -1 {
			return colorReceiver(pkgPath[:end+1]) + "." + styleMethod.Render(rest)
		}
	}
	return stylePkg.Render(pkgPath) + "." + styleMethod.Render(rest)
}

func colorReceiver(recv string) string {
	inner := strings.TrimSuffix(strings.TrimPrefix(recv, "("), ")")
	ptr := false
	if strings.HasPrefix(inner, "*") {
		ptr = true
		inner = strings.TrimPrefix(inner, "*")
	}
	var colored string
	if lastDot := strings.LastIndex(inner, "."); lastDot != -1 {
		colored = stylePkg.Render(inner[:lastDot]) + "." + styleRecv.Render(inner[lastDot+1:])
	} else {
		colored = styleRecv.Render(inner)
	}
	if ptr {
		return "(" + stylePointer.Render("*") + colored + ")"
	}
	return "(" + colored + ")"
}

// highlightNode returns a string with the node highlighted, such that
// `n4:(*example.com/p.T).Run` has the `n4` highlighted as a number.
func highlightNode(node string) string {
	id, body, ok := strings.Cut(node, ":")
	if !ok {
		return styleFunc.Render(node)
	}
	return styleNumber.Render(id) + ":" + semanticColorFunc(body)
}
