package sales_archive

import (
	"time"

	"github.com/sicko7947/etlkit/engine"
)

// RunInput is the request body that starts an archive run
type RunInput struct {
	Orders    int     `json:"orders"`
	MinAmount float64 `json:"minAmount"`
	Overwrite bool    `json:"overwrite"`
}

// Sale is one generated order row
type Sale struct {
	OrderID  int64
	Region   string
	Amount   float64
	PlacedAt time.Time
}

// RunStatus represents the current state of an archive run
type RunStatus struct {
	RunID   string            `json:"runId"`
	Status  engine.RunStatus  `json:"status"`
	Input   RunInput          `json:"input"`
	Report  *engine.RunReport `json:"report,omitempty"`
	Archive string            `json:"archive"`
}
