package view

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/brandon/adex-market-monitor/internal/bignum"
	"github.com/brandon/adex-market-monitor/internal/models"
	"github.com/brandon/adex-market-monitor/internal/policy"
	"github.com/brandon/adex-market-monitor/internal/state"
)

const dai = "0x89d24A6b4CcB1B6fAA2625fE562bDD9a23260359"

var now = time.Date(2019, 6, 1, 12, 0, 0, 0, time.UTC)

func testChannel(id, asset, deposit, paid string, status models.StatusType) models.Channel {
	return models.Channel{
		ID:            id,
		DepositAsset:  asset,
		DepositAmount: bignum.MustParse(deposit),
		Status: models.ChannelStatus{
			StatusType:  status,
			USDEstimate: 1.5,
			Balances:    map[string]bignum.BigNumber{"leader": bignum.MustParse(paid)},
			LastChecked: time.Date(2019, 5, 30, 23, 59, 0, 0, time.UTC),
		},
		Spec: models.ChannelSpec{
			MinPerImpression: bignum.MustParse("1000000000000000"),
			Validators:       []models.ValidatorDesc{{ID: "leader", URL: "https://tom.adex.network"}},
		},
	}
}

func readyModel() state.Model {
	m := state.NewModel()
	m.Channels = state.Ready([]models.Channel{
		testChannel("0xsmall0001", dai, "1000000000000000000", "500000000000000000", models.StatusActive),
		testChannel("0xlarge0002", dai, "2000000000000000000", "500000000000000000", models.StatusReady),
		testChannel("0xother0003", "0xOther", "9000000000000000000", "1000000000000000000", models.StatusExhausted),
	})
	m.LastUpdated = now.Add(-12 * time.Second)
	return m
}

func TestRenderLoading(t *testing.T) {
	n := Render(state.NewModel(), dai, now)
	if n.Tag != "h2" || n.Text != "Loading..." {
		t.Fatalf("expected h2 Loading..., got %s %q", n.Tag, n.Text)
	}
}

func TestRenderLoadingShowsFailures(t *testing.T) {
	m := state.NewModel()
	m.ConsecutiveFailures = 2
	m.LastError = "connection refused"

	n := Render(m, dai, now)
	if n.Tag != "div" || len(n.Children) != 2 {
		t.Fatalf("expected div with 2 children, got %s with %d", n.Tag, len(n.Children))
	}
	status := n.Children[1].Text
	if !strings.Contains(status, "2 consecutive failures") || !strings.Contains(status, "connection refused") {
		t.Errorf("expected failure status line, got %q", status)
	}
}

func TestRenderReady(t *testing.T) {
	n := Render(readyModel(), dai, now)
	if n.Tag != "div" || len(n.Children) != 6 {
		t.Fatalf("expected div with 6 children, got %s with %d", n.Tag, len(n.Children))
	}

	expectedHeaders := []string{
		"Total campaign deposits: 3.00 DAI",
		"Total paid: 1.00 DAI",
		"Total impressions: 2,000",
	}
	for i, want := range expectedHeaders {
		if got := n.Children[i].Text; got != want {
			t.Errorf("expected header %q, got %q", want, got)
		}
	}

	if got := n.Children[3].Text; got != "Last updated 12 seconds ago" {
		t.Errorf("expected status line, got %q", got)
	}

	sel := n.Children[4]
	if sel.Tag != "select" || sel.Attrs["value"] != "deposit" {
		t.Errorf("expected select with value deposit, got %s %v", sel.Tag, sel.Attrs)
	}
	if sel.Events["input"] != SortEvent {
		t.Errorf("expected input event bound to %s, got %v", SortEvent, sel.Events)
	}
	if len(sel.Children) != 2 || sel.Children[0].Text != "Sort by deposit" || sel.Children[1].Text != "Sort by status" {
		t.Errorf("unexpected select options: %+v", sel.Children)
	}

	table := n.Children[5]
	if len(table.Children) != 3 {
		t.Fatalf("expected header and 2 rows, got %d", len(table.Children))
	}
	for i, want := range TableHeader {
		if got := table.Children[0].Children[i].Text; got != want {
			t.Errorf("expected column %d %q, got %q", i, want, got)
		}
	}

	first := table.Children[1]
	link := first.Children[0].Children[0]
	if link.Tag != "a" || link.Text != "0xlarg" {
		t.Errorf("expected link with short id 0xlarg, got %s %q", link.Tag, link.Text)
	}
	if link.Attrs["href"] != "https://tom.adex.network/channel/0xlarge0002/status" || link.Attrs["target"] != "_blank" {
		t.Errorf("unexpected link attrs: %v", link.Attrs)
	}

	expectedCells := []string{"$1.50", "2.00 DAI", "0.50 DAI", "25.000%", "Ready", "2019-05-30"}
	for i, want := range expectedCells {
		if got := first.Children[i+1].Text; got != want {
			t.Errorf("expected cell %d %q, got %q", i+1, want, got)
		}
	}
}

func TestRenderFollowsSortMode(t *testing.T) {
	m := readyModel()
	m.Sort = policy.ByStatus

	n := Render(m, dai, now)
	if got := n.Children[4].Attrs["value"]; got != "status" {
		t.Errorf("expected select value status, got %s", got)
	}
	rows := n.Children[5].Children
	if got := rows[1].Children[5].Text; got != "Ready" {
		t.Errorf("expected Ready first when sorted by status, got %s", got)
	}
	if got := rows[2].Children[5].Text; got != "Active" {
		t.Errorf("expected Active second when sorted by status, got %s", got)
	}
}

func TestRenderDoesNotMutateModel(t *testing.T) {
	m := readyModel()
	before := m.Channels.Channels()[0].ID
	Render(m, dai, now)
	if got := m.Channels.Channels()[0].ID; got != before {
		t.Errorf("expected model order untouched, got %s first", got)
	}
}

func TestWriteHTMLEscapes(t *testing.T) {
	n := &Node{
		Tag:    "div",
		Attrs:  map[string]string{"title": `"quoted"`, "class": "x"},
		Events: map[string]string{"input": "sort"},
		Text:   "<b>&",
		Children: []*Node{
			{Tag: "span", Text: "ok"},
		},
	}

	var buf bytes.Buffer
	if err := WriteHTML(&buf, n); err != nil {
		t.Fatalf("WriteHTML failed: %v", err)
	}
	expected := `<div class="x" title="&#34;quoted&#34;" data-on-input="sort">&lt;b&gt;&amp;<span>ok</span></div>`
	if buf.String() != expected {
		t.Errorf("expected %s, got %s", expected, buf.String())
	}
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTable(&buf, readyModel(), dai); err != nil {
		t.Fatalf("WriteTable failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Total campaign deposits: 3.00 DAI",
		"Total paid: 1.00 DAI",
		"Total impressions: 2,000",
		"https://tom.adex.network/channel/0xlarge0002/status",
		"25.000%",
		"50.000%",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "0xother0003") {
		t.Error("expected channels in other assets to be left out")
	}
}

func TestWriteTableLoading(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTable(&buf, state.NewModel(), dai); err != nil {
		t.Fatalf("WriteTable failed: %v", err)
	}
	if buf.String() != "Loading...\n" {
		t.Errorf("expected Loading..., got %q", buf.String())
	}
}
