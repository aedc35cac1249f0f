package version

import (
	"fmt"
	"log"
	"strings"

	"github.com/thushan/pxlb/theme"
)

var (
	Name        = "pxlb"
	Description = "Pooled forward-proxy load balancer"
	Version     = "v0.0.1"
	Commit      = "none"
	Date        = "nowish"
	User        = "local"
)

const (
	GithubHomeText  = "github.com/thushan/pxlb"
	GithubHomeUri   = "https://github.com/thushan/pxlb"
	GithubLatestUri = "https://github.com/thushan/pxlb/releases/latest"
)

func PrintVersionInfo(extendedInfo bool, vlog *log.Logger) {
	githubUri := theme.Hyperlink(GithubHomeUri, GithubHomeText)
	latestUri := theme.Hyperlink(GithubLatestUri, Version)

	var b strings.Builder

	b.WriteString(theme.ColourSplash(`
╔──────────────────────────────────────────╗
│  ██████╗ ██╗  ██╗██╗     ██████╗         │
│  ██╔══██╗╚██╗██╔╝██║     ██╔══██╗        │
│  ██████╔╝ ╚███╔╝ ██║     ██████╔╝        │
│  ██╔═══╝  ██╔██╗ ██║     ██╔══██╗        │
│  ██║     ██╔╝ ██╗███████╗██████╔╝        │
│  ╚═╝     ╚═╝  ╚═╝╚══════╝╚═════╝         │` + "\n"))

	b.WriteString(theme.ColourSplash("│ "))
	b.WriteString(theme.StyleUrl(githubUri))
	b.WriteString(" ")
	b.WriteString(theme.ColourVersion(latestUri))
	b.WriteString(theme.ColourSplash("          │\n"))
	b.WriteString(theme.ColourSplash("╚──────────────────────────────────────────╝"))

	if extendedInfo {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf(" Commit: %s\n", Commit))
		b.WriteString(fmt.Sprintf("  Built: %s\n", Date))
		b.WriteString(fmt.Sprintf("  Using: %s\n", User))
	}

	vlog.Println(b.String())
}
