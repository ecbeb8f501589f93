// Package wallet fetches TRON account telemetry from the configured data
// sources, values it at the current spot price and renders the daily report.
package wallet

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// UnknownAddress labels a source that did not report an address.
const UnknownAddress = "Unknown"

// sunPerToken converts smallest-unit amounts to whole tokens.
var sunPerToken = decimal.New(1, 6)

// Snapshot is one source's reading for one wallet. Amount fields are in the
// smallest unit (sun) as reported by the source.
type Snapshot struct {
	Source          string          `json:"source"`
	Address         string          `json:"address"`
	EnergyRemaining uint64          `json:"energy_remaining"`
	EnergyLimit     uint64          `json:"energy_limit"`
	TotalBandwidth  uint64          `json:"total_bandwidth"`
	FreeBandwidth   uint64          `json:"free_bandwidth"`
	FreeAmount      decimal.Decimal `json:"free_amount"`
	RewardAmount    decimal.Decimal `json:"reward_amount"`
	FrozenAmount    decimal.Decimal `json:"frozen_amount"`
	AllTokensTotal  decimal.Decimal `json:"all_tokens_total"`
	USDValue        decimal.Decimal `json:"usd_value"`
	FetchedAt       time.Time       `json:"fetched_at"`
}

// accountResponse is the subset of the Tronscan accountv2 payload we read.
// decimal.Decimal accepts both quoted and bare numbers, and null.
type accountResponse struct {
	Address   string `json:"address"`
	Bandwidth struct {
		EnergyRemaining  decimal.Decimal `json:"energyRemaining"`
		EnergyLimit      decimal.Decimal `json:"energyLimit"`
		NetRemaining     decimal.Decimal `json:"netRemaining"`
		FreeNetRemaining decimal.Decimal `json:"freeNetRemaining"`
		NetLimit         decimal.Decimal `json:"netLimit"`
		FreeNetLimit     decimal.Decimal `json:"freeNetLimit"`
	} `json:"bandwidth"`
	WithPriceTokens []struct {
		Amount decimal.Decimal `json:"amount"`
	} `json:"withPriceTokens"`
	RewardNum     decimal.Decimal `json:"rewardNum"`
	TotalFrozenV2 decimal.Decimal `json:"totalFrozenV2"`
}

// ParseAccount normalizes a raw account payload. Missing fields read as 0
// and negative values are clamped to 0.
func ParseAccount(data []byte) (*Snapshot, error) {
	var raw accountResponse
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}

	s := &Snapshot{
		Address:         raw.Address,
		EnergyRemaining: units(raw.Bandwidth.EnergyRemaining),
		EnergyLimit:     units(raw.Bandwidth.EnergyLimit),
		TotalBandwidth:  units(raw.Bandwidth.NetRemaining) + units(raw.Bandwidth.FreeNetRemaining),
		FreeBandwidth:   units(raw.Bandwidth.NetLimit) + units(raw.Bandwidth.FreeNetLimit),
		RewardAmount:    nonNegative(raw.RewardNum),
		FrozenAmount:    nonNegative(raw.TotalFrozenV2),
		FreeAmount:      decimal.Zero,
		USDValue:        decimal.Zero,
	}
	if s.Address == "" {
		s.Address = UnknownAddress
	}
	if len(raw.WithPriceTokens) > 0 {
		s.FreeAmount = nonNegative(raw.WithPriceTokens[0].Amount)
	}
	s.AllTokensTotal = s.FreeAmount.Add(s.FrozenAmount).Add(s.RewardAmount).Div(sunPerToken).Round(2)
	return s, nil
}

// Value sets USDValue from price. An unavailable price values the wallet at 0.
func (s *Snapshot) Value(price decimal.Decimal, ok bool) {
	if !ok {
		s.USDValue = decimal.Zero
		return
	}
	s.USDValue = s.FreeAmount.Add(s.FrozenAmount).Div(sunPerToken).Mul(price)
}

// FreeTokens is the liquid balance in whole tokens.
func (s *Snapshot) FreeTokens() decimal.Decimal { return s.FreeAmount.Div(sunPerToken) }

// RewardTokens is the unclaimed voting reward in whole tokens.
func (s *Snapshot) RewardTokens() decimal.Decimal { return s.RewardAmount.Div(sunPerToken) }

// FrozenTokens is the staked balance in whole tokens.
func (s *Snapshot) FrozenTokens() decimal.Decimal { return s.FrozenAmount.Div(sunPerToken) }

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// units converts a resource counter to uint64, truncating fractions.
func units(d decimal.Decimal) uint64 {
	if !d.IsPositive() {
		return 0
	}
	return d.BigInt().Uint64()
}
