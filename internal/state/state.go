// Package state is the reactive core of the monitor: the application model,
// the messages that change it and the reducer that applies them.
//
// Update is not safe for concurrent use. The session applies every message
// from a single goroutine.
package state

import (
	"time"

	"github.com/brandon/adex-market-monitor/internal/models"
	"github.com/brandon/adex-market-monitor/internal/policy"
)

// Loadable is either Loading (no data yet) or Ready with a channel list.
type Loadable struct {
	ready    bool
	channels []models.Channel
}

// Loading returns the initial, empty Loadable.
func Loading() Loadable {
	return Loadable{}
}

// Ready wraps a fetched channel list.
func Ready(channels []models.Channel) Loadable {
	if channels == nil {
		channels = []models.Channel{}
	}
	return Loadable{ready: true, channels: channels}
}

// IsReady reports whether data has arrived.
func (l Loadable) IsReady() bool {
	return l.ready
}

// Channels returns the Ready list, or nil while Loading.
func (l Loadable) Channels() []models.Channel {
	return l.channels
}

// Model is the whole application state.
type Model struct {
	Channels Loadable
	Sort     policy.SortMode

	// NextSeq numbers outgoing fetches; LastAppliedSeq is the newest fetch
	// whose result is on display.
	NextSeq        uint64
	LastAppliedSeq uint64

	LastUpdated         time.Time
	ConsecutiveFailures int
	LastError           string
}

// NewModel returns the startup state: Loading, sorted by deposit.
func NewModel() Model {
	return Model{
		Channels: Loading(),
		Sort:     policy.ByDeposit,
	}
}

// Msg is an event applied by Update.
type Msg interface {
	isMsg()
}

// RequestRefresh asks for a new fetch of the market listing.
type RequestRefresh struct{}

// RefreshSucceeded carries the decoded listing of fetch Seq.
type RefreshSucceeded struct {
	Seq      uint64
	Channels []models.Channel
}

// RefreshFailed carries the error of fetch Seq.
type RefreshFailed struct {
	Seq uint64
	Err error
}

// SortModeChanged carries the raw selector value.
type SortModeChanged struct {
	Name string
}

func (RequestRefresh) isMsg()   {}
func (RefreshSucceeded) isMsg() {}
func (RefreshFailed) isMsg()    {}
func (SortModeChanged) isMsg()  {}

// Cmd is a side effect requested by Update. The caller runs it.
type Cmd interface {
	isCmd()
}

// FetchCmd asks the caller to fetch the listing and report back with Seq.
type FetchCmd struct {
	Seq uint64
}

func (FetchCmd) isCmd() {}

// Outcome describes what Update did with a message, for logging and metrics.
type Outcome int

const (
	Ignored Outcome = iota
	Applied
	Stale
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Stale:
		return "stale"
	default:
		return "ignored"
	}
}

// Update applies msg to m. It returns the command to run, if any, and what
// happened to the message.
func Update(m *Model, msg Msg, now time.Time) (Cmd, Outcome) {
	switch msg := msg.(type) {
	case RequestRefresh:
		m.NextSeq++
		return FetchCmd{Seq: m.NextSeq}, Applied

	case RefreshSucceeded:
		if msg.Seq <= m.LastAppliedSeq {
			return nil, Stale
		}
		m.Channels = Ready(msg.Channels)
		m.LastAppliedSeq = msg.Seq
		m.LastUpdated = now
		m.ConsecutiveFailures = 0
		m.LastError = ""
		return nil, Applied

	case RefreshFailed:
		// A failure older than the data on display says nothing about it.
		if msg.Seq <= m.LastAppliedSeq {
			return nil, Stale
		}
		m.ConsecutiveFailures++
		if msg.Err != nil {
			m.LastError = msg.Err.Error()
		}
		return nil, Applied

	case SortModeChanged:
		mode, ok := policy.ParseSortMode(msg.Name)
		if !ok {
			return nil, Ignored
		}
		m.Sort = mode
		return nil, Applied
	}
	return nil, Ignored
}
