package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/vadimtrunov/torrentdeck/internal/health"
)

var errUnhealthy = errors.New("one or more backends are unhealthy")

func newCheckCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Probe every backend",
		Long:  "Probe every configured backend and report reachability and latency.\nExits non-zero when any backend is down.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := signalContext()
			defer cancel()

			results := health.NewChecker(s.registry, timeout, s.logger).CheckAll(ctx)
			fmt.Fprintln(cmd.OutOrStdout(), renderHealth(results))
			if !health.Healthy(results) {
				return errUnhealthy
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "per-backend probe timeout")
	return cmd
}

func renderHealth(results []health.BackendHealth) string {
	rows := make([][]string, len(results))
	for i, r := range results {
		status := styleSuccess.Render("ok")
		detail := ""
		if r.Stats != nil {
			detail = fmt.Sprintf("↓ %s  ↑ %s", formatRate(r.Stats.DownloadRate), formatRate(r.Stats.UploadRate))
		}
		if !r.Healthy {
			status = styleError.Render("down")
			detail = r.Error
		}
		rows[i] = []string{r.Name, r.Type, status, r.Latency.Round(time.Millisecond).String(), detail}
	}
	return renderTable(
		[]string{"Backend", "Type", "Status", "Latency", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}
