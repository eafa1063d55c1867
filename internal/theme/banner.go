package theme

import (
	"fmt"
)

// Banner returns the CLI banner.
func Banner() string {
	const cyan = "\033[36m"
	const magenta = "\033[35m"
	const yellow = "\033[33m"
	const reset = "\033[0m"

	art := "" +
		"  ▁▂▃▅▆   " + magenta + "ENGAGELENS" + reset + "   ▆▅▃▂▁\n" +
		cyan + "     ┌────────────────────────┐\n" + reset +
		cyan + "     │  ◉  23 features → rate  │\n" + reset +
		cyan + "     └────────────────────────┘\n" + reset +
		yellow + "     ────────────────────────────\n" + reset +
		"   post engagement forecasting, before you hit publish\n"
	return art
}

// PrintBanner prints the banner to stdout.
func PrintBanner() {
	fmt.Print(Banner())
}
