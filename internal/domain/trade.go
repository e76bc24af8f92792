package domain

import "time"

// Trade is a single executed print on the consolidated tape.
type Trade struct {
	Timestamp  time.Time `json:"t"`
	ID         int64     `json:"i"`
	Price      float64   `json:"p"`
	Size       float64   `json:"s"`
	Exchange   string    `json:"x"`
	Conditions []string  `json:"c"`
	Tape       string    `json:"z"`
}
