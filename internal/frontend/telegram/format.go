package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/vadimtrunov/torrentdeck/internal/core"
	"github.com/vadimtrunov/torrentdeck/internal/health"
	"github.com/vadimtrunov/torrentdeck/internal/torrent"
)

// maxListed caps the torrents rendered per backend to stay under the
// 4096-character message limit.
const maxListed = 20

// mdV2Replacer escapes special characters for Telegram MarkdownV2.
var mdV2Replacer = strings.NewReplacer(
	`\`, `\\`,
	"_", "\\_",
	"*", "\\*",
	"[", "\\[",
	"]", "\\]",
	"(", "\\(",
	")", "\\)",
	"~", "\\~",
	"`", "\\`",
	">", "\\>",
	"#", "\\#",
	"+", "\\+",
	"-", "\\-",
	"=", "\\=",
	"|", "\\|",
	"{", "\\{",
	"}", "\\}",
	".", "\\.",
	"!", "\\!",
)

// EscapeMdV2 escapes a string for safe use in Telegram MarkdownV2.
func EscapeMdV2(s string) string {
	return mdV2Replacer.Replace(s)
}

// FormatBold returns MarkdownV2 bold text.
func FormatBold(s string) string {
	return "*" + EscapeMdV2(s) + "*"
}

// FormatItalic returns MarkdownV2 italic text.
func FormatItalic(s string) string {
	return "_" + EscapeMdV2(s) + "_"
}

// ProgressBar generates an ASCII progress bar.
// width is the total number of characters for the bar body.
func ProgressBar(percent float64, width int) string {
	if width < 1 {
		width = 20
	}
	filled := int(percent / 100 * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return fmt.Sprintf("[%s%s] %.1f%%",
		strings.Repeat("█", filled),
		strings.Repeat("░", width-filled),
		percent,
	)
}

// statusOrder lists the tags that name a torrent's state, most telling first.
var statusOrder = []core.StatusTag{
	core.TagError,
	core.TagChecking,
	core.TagDownloading,
	core.TagSeeding,
	core.TagPaused,
	core.TagStopped,
	core.TagComplete,
}

// statusLabel picks the single tag that best describes a torrent.
func statusLabel(s core.StatusSet) string {
	for _, tag := range statusOrder {
		if s.Has(tag) {
			return string(tag)
		}
	}
	return s.String()
}

func formatRate(bytesPerSec int64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	return humanize.IBytes(uint64(bytesPerSec)) + "/s"
}

// formatSnapshot renders one backend's torrents as MarkdownV2.
func formatSnapshot(s torrent.Snapshot) string {
	var sb strings.Builder
	sb.WriteString(FormatBold(s.Backend))
	sb.WriteString(" " + EscapeMdV2("("+s.Type+")"))

	switch {
	case s.Err != nil:
		sb.WriteString("\n" + FormatItalic(s.Err.Error()))
		return sb.String()
	case len(s.Torrents) == 0:
		sb.WriteString("\n" + FormatItalic("no torrents"))
		return sb.String()
	}

	for i, t := range s.Torrents {
		if i == maxListed {
			sb.WriteString("\n" + FormatItalic(fmt.Sprintf("…and %d more", len(s.Torrents)-maxListed)))
			break
		}
		percent, _ := strconv.ParseFloat(t.PercentComplete, 64)
		fmt.Fprintf(&sb, "\n%d\\. %s\n   %s %s\n   %s",
			i+1,
			FormatBold(t.Name),
			EscapeMdV2(statusLabel(t.Status)),
			EscapeMdV2(ProgressBar(percent, 10)),
			EscapeMdV2("↓ "+formatRate(t.DownloadRate)+"  ↑ "+formatRate(t.UploadRate)),
		)
	}
	return sb.String()
}

// formatHealth renders probe results as MarkdownV2, one line per backend.
func formatHealth(results []health.BackendHealth) string {
	if len(results) == 0 {
		return FormatItalic("no backends configured")
	}

	var sb strings.Builder
	sb.WriteString(FormatBold("Backend health"))
	for _, r := range results {
		latency := r.Latency.Round(time.Millisecond).String()
		if !r.Healthy {
			fmt.Fprintf(&sb, "\n✗ %s %s\n   %s",
				FormatBold(r.Name), EscapeMdV2("("+r.Type+", "+latency+")"), FormatItalic(r.Error))
			continue
		}
		line := latency
		if r.Stats != nil {
			line += "  ↓ " + formatRate(r.Stats.DownloadRate) + "  ↑ " + formatRate(r.Stats.UploadRate)
		}
		fmt.Fprintf(&sb, "\n✓ %s %s\n   %s",
			FormatBold(r.Name), EscapeMdV2("("+r.Type+")"), EscapeMdV2(line))
	}
	return sb.String()
}
