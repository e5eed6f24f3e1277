package engine

import (
	"sync"

	"github.com/mememarket/exchange/internal/domain"
)

// Ledger holds the in-memory share balances minted by matching, keyed by
// wallet and market. Reads of absent pairs return a zero-valued record
// rather than an error: never having traded is not a failure.
type Ledger struct {
	mu       sync.RWMutex
	balances map[string]map[string]*domain.UserShares // wallet -> market id
}

func NewLedger() *Ledger {
	return &Ledger{balances: make(map[string]map[string]*domain.UserShares)}
}

// Credit adds minted shares to the wallet's balance on a market.
func (l *Ledger) Credit(wallet, marketID string, yes, no int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	markets, ok := l.balances[wallet]
	if !ok {
		markets = make(map[string]*domain.UserShares)
		l.balances[wallet] = markets
	}
	s, ok := markets[marketID]
	if !ok {
		s = &domain.UserShares{Owner: wallet, MarketID: marketID}
		markets[marketID] = s
	}
	s.YesShares += yes
	s.NoShares += no
}

// Get returns a copy of the wallet's balance on a market, zero-valued if the
// pair has never been credited.
func (l *Ledger) Get(wallet, marketID string) domain.UserShares {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if markets, ok := l.balances[wallet]; ok {
		if s, ok := markets[marketID]; ok {
			return *s
		}
	}
	return domain.UserShares{Owner: wallet, MarketID: marketID}
}
