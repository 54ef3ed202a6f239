package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/brandon/adex-market-monitor/internal/bignum"
)

// StatusType is the on-chain state of a channel. The declaration order is the
// sort order used by the "status" sort mode.
type StatusType int

const (
	StatusInitializing StatusType = iota
	StatusReady
	StatusActive
	StatusOffline
	StatusDisconnected
	StatusUnhealthy
	StatusWithdraw
	StatusExpired
	StatusExhausted
)

var statusNames = [...]string{
	StatusInitializing: "Initializing",
	StatusReady:        "Ready",
	StatusActive:       "Active",
	StatusOffline:      "Offline",
	StatusDisconnected: "Disconnected",
	StatusUnhealthy:    "Unhealthy",
	StatusWithdraw:     "Withdraw",
	StatusExpired:      "Expired",
	StatusExhausted:    "Exhausted",
}

// ParseStatusType maps a remote status name to its StatusType.
func ParseStatusType(name string) (StatusType, error) {
	for i, n := range statusNames {
		if n == name {
			return StatusType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown status name %q", name)
}

func (s StatusType) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("StatusType(%d)", int(s))
	}
	return statusNames[s]
}

// MarshalJSON encodes the status by name.
func (s StatusType) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a status name.
func (s *StatusType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("status name: %w", err)
	}
	parsed, err := ParseStatusType(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ChannelStatus is the latest observation of a channel reported by the market
type ChannelStatus struct {
	StatusType  StatusType                  `json:"name"`
	USDEstimate float64                     `json:"usdEstimate"`          // Display only
	Balances    map[string]bignum.BigNumber `json:"lastApprovedBalances"` // Validator ID -> approved balance
	LastChecked time.Time                   `json:"lastChecked"`
}

// BalancesSum is the total approved for payout across all validators. It is
// computed on every call.
func (s ChannelStatus) BalancesSum() bignum.BigNumber {
	total := bignum.Zero()
	for _, v := range s.Balances {
		total = total.Add(v)
	}
	return total
}

// ValidatorDesc describes one validator of a channel
type ValidatorDesc struct {
	ID  string `json:"id,omitempty"`
	URL string `json:"url"`
}

// ChannelSpec is the immutable configuration of a channel
type ChannelSpec struct {
	MinPerImpression bignum.BigNumber `json:"minPerImpression"`
	Validators       []ValidatorDesc  `json:"validators"`
}

// Channel represents one advertising payment channel (campaign)
type Channel struct {
	ID            string           `json:"id"`
	DepositAsset  string           `json:"depositAsset"`  // Token contract address
	DepositAmount bignum.BigNumber `json:"depositAmount"` // Total locked, in token base units
	Status        ChannelStatus    `json:"status"`
	Spec          ChannelSpec      `json:"spec"`
}

// ShortID returns the first six characters of the channel ID.
func (c Channel) ShortID() string {
	runes := []rune(c.ID)
	if len(runes) > 6 {
		runes = runes[:6]
	}
	return string(runes)
}

// StatusURL links to the channel status endpoint of the first validator.
func (c Channel) StatusURL() string {
	base := ""
	if len(c.Spec.Validators) > 0 {
		base = c.Spec.Validators[0].URL
	}
	return fmt.Sprintf("%s/channel/%s/status", base, c.ID)
}
