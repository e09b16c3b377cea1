package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"codeberg.org/mutker/qualityctl/internal/driver"
	"codeberg.org/mutker/qualityctl/internal/probe"
	"codeberg.org/mutker/qualityctl/internal/quality"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"
)

var (
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C")).Bold(true)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	currentStyle = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("#6E6E6E"))
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#4A4A4A"))
	titleStyle   = lipgloss.NewStyle().Bold(true).MarginTop(1)
)

// styled reports whether stdout is a terminal worth colouring.
func styled() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func newTable(headers ...string) *table.Table {
	t := table.New().Headers(headers...)
	if !styled() {
		return t.Border(lipgloss.ASCIIBorder()).StyleFunc(func(_, _ int) lipgloss.Style {
			return lipgloss.NewStyle().Padding(0, 1)
		})
	}

	return t.Border(lipgloss.RoundedBorder()).BorderStyle(borderStyle)
}

func renderTiers(w io.Writer, tiers []quality.Tier, current string, minIdx, maxIdx int) {
	rows := make([][]string, len(tiers))
	for i, t := range tiers {
		marker := ""
		switch {
		case t.Name == current:
			marker = "*"
		case i < minIdx || i > maxIdx:
			marker = "-"
		}

		rows[i] = []string{
			marker,
			t.Name,
			strconv.FormatFloat(t.Proxy(), 'f', 0, 64),
			strconv.FormatFloat(t.RenderScale, 'f', 2, 64),
			strconv.Itoa(t.ShadowResolution),
			strconv.FormatFloat(t.DrawDistance, 'f', 0, 64),
			strconv.FormatFloat(t.ParticleDensity, 'f', 2, 64),
			strconv.Itoa(t.TextureQuality),
			strconv.FormatBool(t.AntiAliasing),
			strconv.Itoa(t.MaxDynamicLights),
		}
	}

	t := newTable("", "tier", "proxy", "scale", "shadows", "distance", "particles", "textures", "aa", "lights").
		Rows(rows...)

	if styled() {
		t = t.StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle.Padding(0, 1)
			case rows[row][0] == "*":
				return currentStyle
			case rows[row][0] == "-":
				return mutedStyle
			default:
				return cellStyle
			}
		})
	}

	fmt.Fprintln(w, t.Render())
}

func renderSummary(w io.Writer, sum driver.Summary) {
	st := sum.Stats

	overview := newTable("frames", "elapsed", "start", "end", "upgrades", "downgrades", "thermal", "smoothed fps").
		Row(
			strconv.Itoa(sum.Frames),
			sum.Elapsed.String(),
			sum.StartTier,
			sum.EndTier,
			strconv.Itoa(st.Upgrades),
			strconv.Itoa(st.Downgrades),
			strconv.Itoa(sum.ThermalHits),
			strconv.FormatFloat(st.SmoothedFPS, 'f', 1, 64),
		)
	fmt.Fprintln(w, overview.Render())

	if len(sum.Changes) == 0 {
		return
	}

	changes := newTable("offset", "from", "to", "direction", "reason", "smoothed fps")
	for _, c := range sum.Changes {
		changes.Row(
			c.At.Sub(sum.Start).String(),
			c.Previous,
			c.Tier.Name,
			string(c.Direction),
			string(c.Reason),
			strconv.FormatFloat(c.SmoothedFPS, 'f', 1, 64),
		)
	}

	fmt.Fprintln(w, titleStyle.Render("Tier changes"))
	fmt.Fprintln(w, changes.Render())
}

func renderSuggestion(w io.Writer, kind probe.Kind, s probe.Suggestion) {
	orDash := func(v string) string {
		if v == "" {
			return "-"
		}
		return v
	}

	t := newTable("prober", "initial", "min", "max", "reason").
		Row(string(kind), orDash(s.InitialTier), orDash(s.MinTier), orDash(s.MaxTier), s.Reason)

	fmt.Fprintln(w, t.Render())
}
