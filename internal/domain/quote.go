package domain

import "time"

// Quote is a top-of-book bid/ask snapshot.
type Quote struct {
	Timestamp   time.Time `json:"t"`
	BidPrice    float64   `json:"bp"`
	BidSize     float64   `json:"bs"`
	BidExchange string    `json:"bx"`
	AskPrice    float64   `json:"ap"`
	AskSize     float64   `json:"as"`
	AskExchange string    `json:"ax"`
	Conditions  []string  `json:"c"`
	Tape        string    `json:"z"`
}

// Spread returns ask minus bid.
func (q Quote) Spread() float64 {
	return q.AskPrice - q.BidPrice
}
