package shared

import "fmt"

// StockDedupKey builds the redis key guarding one stock operation of a sale.
func StockDedupKey(saleID int64, operation string) string {
	return fmt.Sprintf("settlement:stock:%d:%s", saleID, operation)
}
