package ui

import "strings"

const (
	reset      = "\033[0m"
	bold       = "\033[1m"
	dimGray    = "\033[38;5;244m"
	ember      = "\033[38;5;208m"
	gold       = "\033[38;5;214m"
	lemon      = "\033[38;5;226m"
	mint       = "\033[38;5;121m"
	seafoam    = "\033[38;5;49m"
	sky        = "\033[38;5;39m"
	deepIndigo = "\033[38;5;61m"
	orchid     = "\033[38;5;177m"
	amber      = "\033[38;5;178m"
)

// Banner renders a colored sysglance wordmark.
func Banner() string {
	var b strings.Builder

	letters := [][]string{
		{" ██████╗ ", "██╔════╝ ", "╚█████╗  ", " ╚═══██╗ ", "██████╔╝ ", "╚═════╝  "},
		{"██╗   ██╗", "╚██╗ ██╔╝", " ╚████╔╝ ", "  ╚██╔╝  ", "   ██║   ", "   ╚═╝   "},
		{" ██████╗ ", "██╔════╝ ", "╚█████╗  ", " ╚═══██╗ ", "██████╔╝ ", "╚═════╝  "},
		{" ██████╗ ", "██╔════╝ ", "██║  ███╗", "██║   ██║", "╚██████╔╝", " ╚═════╝ "},
		{"██╗      ", "██║      ", "██║      ", "██║      ", "███████╗ ", "╚══════╝ "},
		{" █████╗  ", "██╔══██╗ ", "███████║ ", "██╔══██║ ", "██║  ██║ ", "╚═╝  ╚═╝ "},
		{"███╗   ██╗", "████╗  ██║", "██╔██╗ ██║", "██║╚██╗██║", "██║ ╚████║", "╚═╝  ╚═══╝"},
		{" ██████╗ ", "██╔════╝ ", "██║      ", "██║      ", "╚██████╗ ", " ╚═════╝ "},
		{"███████╗", "██╔════╝", "█████╗  ", "██╔══╝  ", "███████╗", "╚══════╝"},
	}
	gradient := []string{ember, gold, lemon, mint, seafoam, sky, deepIndigo, orchid, amber}
	rows := make([]string, len(letters[0]))
	for i, letter := range letters {
		color := gradient[i%len(gradient)]
		for row := 0; row < len(letter); row++ {
			rows[row] += color + letter[row] + " "
		}
	}
	for _, line := range rows {
		b.WriteString(bold + line + reset + "\n")
	}

	b.WriteString("\n")
	b.WriteString(bold + sky + "sysglance" + reset + "  •  system utilization at a glance\n\n")

	return b.String()
}
