package cart

// Outcome classifies what reconciliation did to a line.
type Outcome string

const (
	OutcomeAdjusted Outcome = "adjusted"
	OutcomeRemoved  Outcome = "removed"
)

// ReportEntry records one corrected line: the quantity the cart held
// before and the quantity (possibly zero) it holds after.
type ReportEntry struct {
	ProductID int64   `json:"product_id"`
	Name      string  `json:"name"`
	Outcome   Outcome `json:"outcome"`
	Before    int64   `json:"before"`
	After     int64   `json:"after"`
}

// Report is the consolidated result of one reconciliation pass. Affected
// lines are reported together, once, never as a message per item.
type Report struct {
	Entries []ReportEntry `json:"entries"`
}

// Clean reports whether reconciliation left the cart untouched.
func (r Report) Clean() bool {
	return len(r.Entries) == 0
}

// Reconcile aligns every line with the stock view: lines above stock are
// clamped down, lines whose stock is gone are removed. The cache should be
// refreshed immediately before the pass that gates finalization; the pass
// itself is advisory and the commit protocol re-checks at the ledger.
func (c *Cart) Reconcile(stock StockReader) Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	var report Report
	kept := c.items[:0]
	for _, item := range c.items {
		available := stock.Read(item.ProductID)
		switch {
		case available == 0:
			report.Entries = append(report.Entries, ReportEntry{
				ProductID: item.ProductID,
				Name:      item.Name,
				Outcome:   OutcomeRemoved,
				Before:    item.Quantity,
			})
		case available < item.Quantity:
			report.Entries = append(report.Entries, ReportEntry{
				ProductID: item.ProductID,
				Name:      item.Name,
				Outcome:   OutcomeAdjusted,
				Before:    item.Quantity,
				After:     available,
			})
			item.Quantity = available
			kept = append(kept, item)
		default:
			kept = append(kept, item)
		}
	}
	c.items = kept
	return report
}
