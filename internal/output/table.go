package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/botwire/botwire/internal/core"
	"github.com/botwire/botwire/internal/core/store"
)

// Table is a titled grid with an optional footer line.
type Table struct {
	Title  string
	Header table.Row
	Rows   []table.Row
	Footer string
	// Empty is printed instead of the grid when Rows is empty.
	Empty string
}

func (t Table) render(format Format) string {
	if len(t.Rows) == 0 && t.Empty != "" {
		switch format {
		case FormatMarkdown:
			return fmt.Sprintf("**%s**\n\n_%s_", t.Title, t.Empty)
		case FormatCSV:
			return ""
		default:
			return t.Empty
		}
	}

	w := table.NewWriter()
	w.SetStyle(table.StyleRounded)
	csv := format == FormatCSV
	if t.Title != "" && !csv {
		w.SetTitle(t.Title)
	}
	w.AppendHeader(t.Header)
	w.AppendRows(t.Rows)
	if t.Footer != "" && !csv {
		footer := make(table.Row, len(t.Header))
		for i := range footer {
			footer[i] = ""
		}
		footer[len(footer)-1] = t.Footer
		w.AppendFooter(footer)
	}

	switch format {
	case FormatMarkdown:
		return w.RenderMarkdown()
	case FormatCSV:
		return w.RenderCSV()
	default:
		return w.Render()
	}
}

// RateLimitTable lists stored fixed-window buckets. Buckets whose window has
// already rolled over are marked expired.
func RateLimitTable(buckets []core.RateLimitBucket, now time.Time) Table {
	t := Table{
		Title:  "Rate Limits",
		Header: table.Row{"Profile", "Identifier", "Count", "Window", "Resets"},
		Empty:  "(no stored rate limit state)",
	}
	for _, b := range buckets {
		resets := b.ResetAt().UTC().Format(time.RFC3339)
		if !now.Before(b.ResetAt()) {
			resets += " (expired)"
		}
		t.Rows = append(t.Rows, table.Row{b.Profile, b.Identifier, b.Count, b.Window.String(), resets})
	}
	if len(buckets) > 0 {
		t.Footer = fmt.Sprintf("%d bucket(s)", len(buckets))
	}
	return t
}

// BotTable lists registered bots and their balances.
func BotTable(bots []store.Bot) Table {
	t := Table{
		Title:  "Bots",
		Header: table.Row{"Username", "Balance", "Created"},
		Empty:  "(no bots registered)",
	}
	var total int64
	for _, b := range bots {
		total += b.Balance
		t.Rows = append(t.Rows, table.Row{b.Username, b.Balance, b.CreatedAt.UTC().Format(time.RFC3339)})
	}
	if len(bots) > 0 {
		t.Footer = fmt.Sprintf("%d token(s) outstanding", total)
	}
	return t
}

// KeyValueTable renders ordered pairs, one per row.
func KeyValueTable(title string, pairs ...[2]string) Table {
	t := Table{Title: title, Header: table.Row{"Field", "Value"}}
	for _, p := range pairs {
		t.Rows = append(t.Rows, table.Row{p[0], strings.TrimSpace(p[1])})
	}
	return t
}
