package sales_archive

import (
	"context"
	"fmt"
	"time"

	"github.com/sicko7947/etlkit"
	"github.com/sicko7947/etlkit/engine"
	"github.com/sicko7947/etlkit/table"
)

var regions = []string{"north", "south", "east", "west"}

// GenerateSales builds n deterministic orders starting at base
func GenerateSales(n int, base time.Time) []Sale {
	sales := make([]Sale, n)
	for i := range sales {
		sales[i] = Sale{
			OrderID:  int64(i + 1),
			Region:   regions[i%len(regions)],
			Amount:   float64((i*37)%200) + 0.5,
			PlacedAt: base.Add(time.Duration(i) * time.Hour),
		}
	}
	return sales
}

// SalesTable converts orders into a table with placed_at kept as RFC 3339 text
func SalesTable(sales []Sale) (*table.Table, error) {
	rows := make([][]any, len(sales))
	for i, s := range sales {
		rows[i] = []any{s.OrderID, s.Region, s.Amount, s.PlacedAt.UTC().Format(time.RFC3339)}
	}
	return table.FromRows([]string{"order_id", "region", "amount", "placed_at"}, rows)
}

func NewDropSmallStep(minAmount float64) engine.Step {
	return engine.CleanStep("drop_small", "staging",
		[]etlkit.Condition{etlkit.Cond("amount", "<", minAmount)},
		etlkit.BinaryAnd,
	)
}

func NewBandStep() engine.Step {
	return engine.TransformStep("band", "Band amounts", func(ctx context.Context, p *etlkit.Pipeline) error {
		amount, ok := p.Data().Column("amount")
		if !ok {
			return etlkit.NewError(etlkit.ErrCodeNotFound, "column amount missing")
		}

		bands := make([]any, amount.Len())
		for i, v := range amount.Values {
			f, ok := v.(float64)
			if !ok {
				return fmt.Errorf("amount %v is not a float", v)
			}
			switch {
			case f >= 150:
				bands[i] = "high"
			case f >= 50:
				bands[i] = "mid"
			default:
				bands[i] = "low"
			}
		}
		return p.AddColumn("band", bands)
	}).WithTimeout(10 * time.Second)
}
