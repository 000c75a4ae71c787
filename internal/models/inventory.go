package models

// InventoryItem is one catalog row with a usable name and internal price
type InventoryItem struct {
	Name          string  `json:"name"`
	InternalPrice float64 `json:"internal_price"`
	Row           int     `json:"row"` // 1-based row in the source file
}
