package domain

import "time"

// Fixed-point price scale: 1_000_000 ticks == $1.00. Complementary-pair
// matching compares tick sums against PricePrecision exactly, so there is no
// floating-point tolerance anywhere in the matching path.
const PricePrecision int64 = 1_000_000

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL int64 = 1_000_000_000

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusActive   MarketStatus = "active"
	MarketStatusResolved MarketStatus = "resolved"
	MarketStatusExpired  MarketStatus = "expired"
)

// Market represents a binary-outcome prediction market on a meme token
// reaching a target market cap before expiry.
type Market struct {
	ID              string       `json:"id"`
	TokenSymbol     string       `json:"token_symbol"`
	TokenAddress    string       `json:"token_address"`
	Question        string       `json:"question"`
	TargetMarketCap float64      `json:"target_market_cap"`
	CurrentMarketCap float64     `json:"current_market_cap"`
	ExpiryTime      time.Time    `json:"expiry_time"`
	YesPriceTicks   int64        `json:"yes_price_ticks"`
	NoPriceTicks    int64        `json:"no_price_ticks"`
	VolumeLamports  int64        `json:"volume_lamports"`
	VolumeUSD       float64      `json:"volume_usd"`
	YesSharesSupply int64        `json:"yes_shares_supply"`
	NoSharesSupply  int64        `json:"no_shares_supply"`
	// OneDollarLamports is the conversion-rate snapshot captured at market
	// creation: how many lamports one dollar bought at that moment. All
	// collateral math for this market uses this snapshot, not the live rate.
	OneDollarLamports int64        `json:"one_dollar_lamports"`
	Status            MarketStatus `json:"status"`
	WinningOutcome    *Outcome     `json:"winning_outcome,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	LastUpdated       time.Time    `json:"last_updated"`
}

// YesPrice returns the display dollar price of a YES share.
func (m Market) YesPrice() float64 {
	return float64(m.YesPriceTicks) / float64(PricePrecision)
}

// NoPrice returns the display dollar price of a NO share.
func (m Market) NoPrice() float64 {
	return float64(m.NoPriceTicks) / float64(PricePrecision)
}

// VolumeSOL returns cumulative traded volume in SOL.
func (m Market) VolumeSOL() float64 {
	return float64(m.VolumeLamports) / float64(LamportsPerSOL)
}
