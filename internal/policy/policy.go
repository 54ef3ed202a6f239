// Package policy holds the asset filter and ordering rules applied to the
// channel list before it is displayed.
package policy

import (
	"sort"

	"github.com/brandon/adex-market-monitor/internal/models"
)

// SortMode selects the ordering of the channel table.
type SortMode int

const (
	// ByDeposit orders by deposit, largest first.
	ByDeposit SortMode = iota
	// ByStatus orders by status declaration order.
	ByStatus
)

// ParseSortMode maps a selector value to a SortMode.
func ParseSortMode(name string) (SortMode, bool) {
	switch name {
	case "deposit":
		return ByDeposit, true
	case "status":
		return ByStatus, true
	default:
		return ByDeposit, false
	}
}

// String returns the selector value of the mode.
func (m SortMode) String() string {
	if m == ByStatus {
		return "status"
	}
	return "deposit"
}

// FilterByAsset returns the channels whose deposit asset equals asset.
func FilterByAsset(channels []models.Channel, asset string) []models.Channel {
	out := make([]models.Channel, 0, len(channels))
	for _, ch := range channels {
		if ch.DepositAsset == asset {
			out = append(out, ch)
		}
	}
	return out
}

// Sort returns a sorted copy of channels. Ties keep their input order.
func Sort(channels []models.Channel, mode SortMode) []models.Channel {
	out := make([]models.Channel, len(channels))
	copy(out, channels)

	switch mode {
	case ByStatus:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Status.StatusType < out[j].Status.StatusType
		})
	default:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].DepositAmount.Cmp(out[j].DepositAmount) > 0
		})
	}
	return out
}

// Apply filters to asset and then sorts by mode. channels is not modified.
func Apply(channels []models.Channel, asset string, mode SortMode) []models.Channel {
	return Sort(FilterByAsset(channels, asset), mode)
}
