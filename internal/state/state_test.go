package state

import (
	"errors"
	"testing"
	"time"

	"github.com/brandon/adex-market-monitor/internal/bignum"
	"github.com/brandon/adex-market-monitor/internal/models"
	"github.com/brandon/adex-market-monitor/internal/policy"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sampleChannels(ids ...string) []models.Channel {
	out := make([]models.Channel, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Channel{ID: id, DepositAmount: bignum.FromUint64(1)})
	}
	return out
}

func TestNewModel(t *testing.T) {
	m := NewModel()
	if m.Channels.IsReady() {
		t.Fatal("expected initial state to be Loading")
	}
	if m.Channels.Channels() != nil {
		t.Fatal("expected no channels while Loading")
	}
	if m.Sort != policy.ByDeposit {
		t.Fatalf("expected default sort ByDeposit, got %s", m.Sort)
	}
}

func TestRequestRefreshIssuesNumberedFetches(t *testing.T) {
	m := NewModel()

	for want := uint64(1); want <= 3; want++ {
		cmd, outcome := Update(&m, RequestRefresh{}, now)
		fetch, ok := cmd.(FetchCmd)
		if !ok {
			t.Fatalf("expected FetchCmd, got %T", cmd)
		}
		if fetch.Seq != want {
			t.Fatalf("expected seq %d, got %d", want, fetch.Seq)
		}
		if outcome != Applied {
			t.Fatalf("expected Applied, got %s", outcome)
		}
	}
	if m.Channels.IsReady() {
		t.Fatal("RequestRefresh must not change channel data")
	}
}

func TestRefreshSucceededReplacesPayload(t *testing.T) {
	m := NewModel()
	Update(&m, RequestRefresh{}, now)
	Update(&m, RequestRefresh{}, now)

	first := sampleChannels("a", "b")
	Update(&m, RefreshSucceeded{Seq: 1, Channels: first}, now)
	if !m.Channels.IsReady() || len(m.Channels.Channels()) != 2 {
		t.Fatalf("expected Ready with 2 channels, got %+v", m.Channels)
	}

	second := sampleChannels("c")
	later := now.Add(time.Minute)
	if _, outcome := Update(&m, RefreshSucceeded{Seq: 2, Channels: second}, later); outcome != Applied {
		t.Fatalf("expected Applied, got %s", outcome)
	}
	got := m.Channels.Channels()
	if len(got) != 1 || got[0].ID != "c" {
		t.Fatalf("expected payload to be replaced by [c], got %+v", got)
	}
	if !m.LastUpdated.Equal(later) {
		t.Errorf("expected LastUpdated %s, got %s", later, m.LastUpdated)
	}
}

func TestEmptySuccessIsReady(t *testing.T) {
	m := NewModel()
	Update(&m, RequestRefresh{}, now)
	Update(&m, RefreshSucceeded{Seq: 1}, now)
	if !m.Channels.IsReady() {
		t.Fatal("expected Ready after an empty listing")
	}
	if m.Channels.Channels() == nil || len(m.Channels.Channels()) != 0 {
		t.Fatal("expected empty, non-nil channel list")
	}
}

func TestLateStaleResponseIsDiscarded(t *testing.T) {
	m := NewModel()
	Update(&m, RequestRefresh{}, now)
	Update(&m, RequestRefresh{}, now)

	Update(&m, RefreshSucceeded{Seq: 2, Channels: sampleChannels("new")}, now)
	_, outcome := Update(&m, RefreshSucceeded{Seq: 1, Channels: sampleChannels("old")}, now)
	if outcome != Stale {
		t.Fatalf("expected Stale, got %s", outcome)
	}
	if got := m.Channels.Channels(); got[0].ID != "new" {
		t.Fatalf("expected newest data to stay on display, got %s", got[0].ID)
	}
	if m.LastAppliedSeq != 2 {
		t.Fatalf("expected LastAppliedSeq 2, got %d", m.LastAppliedSeq)
	}
}

func TestRefreshFailedLeavesReadyListUntouched(t *testing.T) {
	m := NewModel()
	Update(&m, RequestRefresh{}, now)
	x := sampleChannels("x")
	Update(&m, RefreshSucceeded{Seq: 1, Channels: x}, now)
	Update(&m, RequestRefresh{}, now)

	_, outcome := Update(&m, RefreshFailed{Seq: 2, Err: errors.New("connection refused")}, now.Add(time.Minute))
	if outcome != Applied {
		t.Fatalf("expected Applied, got %s", outcome)
	}

	got := m.Channels.Channels()
	if !m.Channels.IsReady() || len(got) != 1 || &got[0] != &x[0] {
		t.Fatal("expected the very same Ready([X]) list after a failed refresh")
	}
	if m.ConsecutiveFailures != 1 || m.LastError != "connection refused" {
		t.Errorf("expected failure to be recorded, got %d %q", m.ConsecutiveFailures, m.LastError)
	}
	if !m.LastUpdated.Equal(now) {
		t.Errorf("expected LastUpdated to stay %s, got %s", now, m.LastUpdated)
	}

	Update(&m, RequestRefresh{}, now)
	Update(&m, RefreshSucceeded{Seq: 3, Channels: x}, now)
	if m.ConsecutiveFailures != 0 || m.LastError != "" {
		t.Errorf("expected success to clear failures, got %d %q", m.ConsecutiveFailures, m.LastError)
	}
}

func TestRefreshFailedWhileLoadingStaysLoading(t *testing.T) {
	m := NewModel()
	Update(&m, RequestRefresh{}, now)
	Update(&m, RefreshFailed{Seq: 1, Err: errors.New("boom")}, now)
	if m.Channels.IsReady() {
		t.Fatal("expected Loading after a failed first fetch")
	}
	if m.ConsecutiveFailures != 1 {
		t.Fatalf("expected 1 failure, got %d", m.ConsecutiveFailures)
	}
}

func TestFailureOlderThanDisplayedDataIsStale(t *testing.T) {
	m := NewModel()
	Update(&m, RequestRefresh{}, now)
	Update(&m, RequestRefresh{}, now)
	Update(&m, RefreshSucceeded{Seq: 2, Channels: sampleChannels("a")}, now)

	if _, outcome := Update(&m, RefreshFailed{Seq: 1, Err: errors.New("late")}, now); outcome != Stale {
		t.Fatalf("expected Stale, got %s", outcome)
	}
	if m.ConsecutiveFailures != 0 {
		t.Fatalf("expected no failures counted, got %d", m.ConsecutiveFailures)
	}
}

func TestSortModeChanged(t *testing.T) {
	m := NewModel()

	if _, outcome := Update(&m, SortModeChanged{Name: "status"}, now); outcome != Applied || m.Sort != policy.ByStatus {
		t.Fatalf("expected ByStatus, got %s (%s)", m.Sort, outcome)
	}
	if _, outcome := Update(&m, SortModeChanged{Name: "bogus"}, now); outcome != Ignored {
		t.Fatalf("expected Ignored, got %s", outcome)
	}
	if m.Sort != policy.ByStatus {
		t.Fatalf("expected bogus selector to leave ByStatus, got %s", m.Sort)
	}
	Update(&m, SortModeChanged{Name: "deposit"}, now)
	if m.Sort != policy.ByDeposit {
		t.Fatalf("expected ByDeposit, got %s", m.Sort)
	}
}
