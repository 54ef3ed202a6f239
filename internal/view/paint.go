package view

import (
	"bufio"
	"fmt"
	"html"
	"io"
	"sort"

	"github.com/brandon/adex-market-monitor/internal/aggregate"
	"github.com/brandon/adex-market-monitor/internal/policy"
	"github.com/brandon/adex-market-monitor/internal/state"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// WriteHTML paints n as HTML. Event bindings become data-on-<event>
// attributes for the page script to pick up.
func WriteHTML(w io.Writer, n *Node) error {
	bw := bufio.NewWriter(w)
	writeNode(bw, n)
	return bw.Flush()
}

func writeNode(w *bufio.Writer, n *Node) {
	if n == nil {
		return
	}
	w.WriteString("<" + n.Tag)
	for _, k := range sortedKeys(n.Attrs) {
		fmt.Fprintf(w, ` %s="%s"`, k, html.EscapeString(n.Attrs[k]))
	}
	for _, k := range sortedKeys(n.Events) {
		fmt.Fprintf(w, ` data-on-%s="%s"`, k, html.EscapeString(n.Events[k]))
	}
	w.WriteString(">")
	w.WriteString(html.EscapeString(n.Text))
	for _, c := range n.Children {
		writeNode(w, c)
	}
	w.WriteString("</" + n.Tag + ">")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WriteTable paints the model as a terminal report: the header figures
// followed by the channel table.
func WriteTable(w io.Writer, m state.Model, targetAsset string) error {
	if !m.Channels.IsReady() {
		_, err := fmt.Fprintln(w, "Loading...")
		return err
	}

	all := m.Channels.Channels()
	channels := policy.Apply(all, targetAsset, m.Sort)
	summary := aggregate.Summarize(all, channels)

	if _, err := fmt.Fprintf(w,
		"Total campaign deposits: %s\nTotal paid: %s\nTotal impressions: %s\n",
		aggregate.FormatCurrency(summary.TotalDeposit),
		aggregate.FormatCurrency(summary.TotalPaid),
		aggregate.FormatCount(summary.TotalImpressions),
	); err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	header := make(table.Row, len(TableHeader))
	for i, h := range TableHeader {
		header[i] = h
	}
	t.AppendHeader(header)
	t.AppendSeparator()
	for _, ch := range channels {
		cells := rowCells(ch)
		row := make(table.Row, len(cells))
		for i, c := range cells {
			row[i] = c
		}
		t.AppendRow(row)
	}
	t.SetColumnConfigs(
		[]table.ColumnConfig{
			{Name: "USD estimate", Align: text.AlignRight},
			{Name: "Deposit", Align: text.AlignRight},
			{Name: "Paid", Align: text.AlignRight},
			{Name: "Paid - %", Align: text.AlignRight},
		},
	)
	t.Render()
	return nil
}
