// Package view projects the application model onto a display tree. The tree
// is independent of any DOM; painters turn it into HTML or a terminal table.
package view

import (
	"fmt"
	"time"

	"github.com/brandon/adex-market-monitor/internal/aggregate"
	"github.com/brandon/adex-market-monitor/internal/models"
	"github.com/brandon/adex-market-monitor/internal/policy"
	"github.com/brandon/adex-market-monitor/internal/state"
	"github.com/dustin/go-humanize"
)

// SortEvent is the event name bound to the sort selector. Its value is the
// name of the requested sort mode.
const SortEvent = "sort"

// TableHeader lists the channel table columns in display order.
var TableHeader = []string{"URL", "USD estimate", "Deposit", "Paid", "Paid - %", "Status", "Last updated"}

// Node is one element of the display tree.
type Node struct {
	Tag      string            `json:"tag"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Events   map[string]string `json:"events,omitempty"` // DOM event -> message name
	Text     string            `json:"text,omitempty"`
	Children []*Node           `json:"children,omitempty"`
}

func el(tag string, children ...*Node) *Node {
	return &Node{Tag: tag, Children: children}
}

func textNode(tag, s string) *Node {
	return &Node{Tag: tag, Text: s}
}

// Render builds the display tree for m. Deposit and paid figures cover only
// channels in targetAsset; impressions cover the whole listing.
func Render(m state.Model, targetAsset string, now time.Time) *Node {
	if !m.Channels.IsReady() {
		loading := textNode("h2", "Loading...")
		if m.ConsecutiveFailures == 0 {
			return loading
		}
		return el("div", loading, statusLine(m, now))
	}

	all := m.Channels.Channels()
	channels := policy.Apply(all, targetAsset, m.Sort)
	summary := aggregate.Summarize(all, channels)

	return el("div",
		textNode("h2", "Total campaign deposits: "+aggregate.FormatCurrency(summary.TotalDeposit)),
		textNode("h2", "Total paid: "+aggregate.FormatCurrency(summary.TotalPaid)),
		textNode("h2", "Total impressions: "+aggregate.FormatCount(summary.TotalImpressions)),
		statusLine(m, now),
		sortSelect(m.Sort),
		channelTable(channels),
	)
}

func statusLine(m state.Model, now time.Time) *Node {
	var line string
	if m.LastUpdated.IsZero() {
		line = "Waiting for the first market listing"
	} else {
		line = "Last updated " + humanize.RelTime(m.LastUpdated, now, "ago", "from now")
	}
	if m.ConsecutiveFailures > 0 {
		line += fmt.Sprintf("; %d consecutive failures (%s)", m.ConsecutiveFailures, m.LastError)
	}
	return &Node{Tag: "p", Attrs: map[string]string{"class": "status"}, Text: line}
}

func sortSelect(current policy.SortMode) *Node {
	option := func(mode policy.SortMode, label string) *Node {
		attrs := map[string]string{"value": mode.String()}
		if mode == current {
			attrs["selected"] = "selected"
		}
		return &Node{Tag: "option", Attrs: attrs, Text: label}
	}
	return &Node{
		Tag:    "select",
		Attrs:  map[string]string{"value": current.String()},
		Events: map[string]string{"input": SortEvent},
		Children: []*Node{
			option(policy.ByDeposit, "Sort by deposit"),
			option(policy.ByStatus, "Sort by status"),
		},
	}
}

func channelTable(channels []models.Channel) *Node {
	header := el("tr")
	for _, h := range TableHeader {
		header.Children = append(header.Children, textNode("td", h))
	}

	table := el("table", header)
	for _, ch := range channels {
		table.Children = append(table.Children, channelRow(ch))
	}
	return table
}

func channelRow(ch models.Channel) *Node {
	link := &Node{
		Tag:   "a",
		Attrs: map[string]string{"href": ch.StatusURL(), "target": "_blank"},
		Text:  ch.ShortID(),
	}
	cells := rowCells(ch)
	row := el("tr", el("td", link))
	for _, c := range cells[1:] {
		row.Children = append(row.Children, textNode("td", c))
	}
	return row
}

// rowCells formats one channel in TableHeader order. The first cell is the
// status URL.
func rowCells(ch models.Channel) []string {
	return []string{
		ch.StatusURL(),
		aggregate.FormatUSD(ch.Status.USDEstimate),
		aggregate.FormatCurrency(ch.DepositAmount),
		aggregate.FormatCurrency(ch.Status.BalancesSum()),
		aggregate.FormatPercentage(aggregate.PaidPercentage(ch)),
		ch.Status.StatusType.String(),
		ch.Status.LastChecked.UTC().Format("2006-01-02"),
	}
}
