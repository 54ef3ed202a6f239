package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/brandon/adex-market-monitor/internal/bignum"
)

// DecodeError reports a malformed market listing. Index is the offending
// record, or -1 when the document itself is malformed.
type DecodeError struct {
	Index int
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	switch {
	case e.Index < 0:
		return fmt.Sprintf("decode market listing: %v", e.Err)
	case e.Field != "":
		return fmt.Sprintf("decode channel %d: field %s: %v", e.Index, e.Field, e.Err)
	default:
		return fmt.Sprintf("decode channel %d: %v", e.Index, e.Err)
	}
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

var errMissingField = errors.New("missing required field")

// Wire shapes use pointers so absent required fields can be told apart from
// zero values.
type wireChannel struct {
	ID            *string           `json:"id"`
	DepositAsset  *string           `json:"depositAsset"`
	DepositAmount *bignum.BigNumber `json:"depositAmount"`
	Status        *wireStatus       `json:"status"`
	Spec          *wireSpec         `json:"spec"`
}

type wireStatus struct {
	Name        *StatusType                 `json:"name"`
	USDEstimate *float64                    `json:"usdEstimate"`
	Balances    map[string]bignum.BigNumber `json:"lastApprovedBalances"`
	LastChecked *int64                      `json:"lastChecked"` // Epoch milliseconds
}

type wireSpec struct {
	MinPerImpression *bignum.BigNumber `json:"minPerImpression"`
	Validators       []ValidatorDesc   `json:"validators"`
}

// DecodeChannels decodes a market listing. Decoding is all or nothing: one bad
// record fails the whole document.
func DecodeChannels(r io.Reader) ([]Channel, error) {
	dec := json.NewDecoder(r)
	var raw []json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, &DecodeError{Index: -1, Err: err}
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, &DecodeError{Index: -1, Err: errors.New("trailing data after listing")}
	}
	if raw == nil {
		return nil, &DecodeError{Index: -1, Err: errors.New("expected a JSON array, got null")}
	}

	channels := make([]Channel, 0, len(raw))
	for i, record := range raw {
		ch, err := decodeChannel(record)
		if err != nil {
			err.Index = i
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

func decodeChannel(data []byte) (Channel, *DecodeError) {
	var w wireChannel
	if err := json.Unmarshal(data, &w); err != nil {
		return Channel{}, &DecodeError{Err: err}
	}

	missing := func(field string) (Channel, *DecodeError) {
		return Channel{}, &DecodeError{Field: field, Err: errMissingField}
	}
	switch {
	case w.ID == nil:
		return missing("id")
	case w.DepositAsset == nil:
		return missing("depositAsset")
	case w.DepositAmount == nil:
		return missing("depositAmount")
	case w.Status == nil:
		return missing("status")
	case w.Status.Name == nil:
		return missing("status.name")
	case w.Status.USDEstimate == nil:
		return missing("status.usdEstimate")
	case w.Status.Balances == nil:
		return missing("status.lastApprovedBalances")
	case w.Status.LastChecked == nil:
		return missing("status.lastChecked")
	case w.Spec == nil:
		return missing("spec")
	case w.Spec.MinPerImpression == nil:
		return missing("spec.minPerImpression")
	}

	validators := w.Spec.Validators
	if validators == nil {
		validators = []ValidatorDesc{}
	}

	return Channel{
		ID:            *w.ID,
		DepositAsset:  *w.DepositAsset,
		DepositAmount: *w.DepositAmount,
		Status: ChannelStatus{
			StatusType:  *w.Status.Name,
			USDEstimate: *w.Status.USDEstimate,
			Balances:    w.Status.Balances,
			LastChecked: time.UnixMilli(*w.Status.LastChecked).UTC(),
		},
		Spec: ChannelSpec{
			MinPerImpression: *w.Spec.MinPerImpression,
			Validators:       validators,
		},
	}, nil
}
