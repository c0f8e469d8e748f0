package model

import "time"

type Flow string

const (
	FlowExport Flow = "export"
	FlowImport Flow = "import"
)

// RawReading is one marker of the live-data widget payload.
type RawReading struct {
	NeighborID     string
	ArrowDirection string
	MagnitudeText  string
}

// ExchangeRecord carries the net flow along SortedZoneKeys: positive values
// travel from the first zone of the key to the second.
type ExchangeRecord struct {
	SortedZoneKeys string    `json:"sortedZoneKeys"`
	Datetime       time.Time `json:"datetime"`
	NetFlow        float64   `json:"netFlow"`
	Source         string    `json:"source"`
}

type StoredExchange struct {
	ExchangeRecord
	RunID      string    `json:"runId"`
	IngestedAt time.Time `json:"ingestedAt"`
}
