package clock

import "time"

// Ticker is the subset of time.Ticker the countdown needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Source creates tickers. Tests substitute a manual source.
type Source interface {
	NewTicker(d time.Duration) Ticker
}

// RealSource is backed by time.NewTicker.
type RealSource struct{}

func (RealSource) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }
