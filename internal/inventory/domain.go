package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// ItemsCollection holds one record per tracked item, keyed by item code.
	ItemsCollection = "inventory_items"
	// MovementsCollection is the append-only movement log.
	MovementsCollection = "inventory_movements"
)

// Direction of a stock movement.
type Direction string

const (
	// DirectionSale decrements stock.
	DirectionSale Direction = "sale"
	// DirectionReturn increments stock.
	DirectionReturn Direction = "return"
)

// Item is a tracked inventory position. Quantity never goes below zero; a
// sale that would drive it negative clamps it at zero instead.
type Item struct {
	Code         string          `json:"itemCode"`
	Name         string          `json:"itemName"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	GST          decimal.Decimal `json:"gst"`
	TotalSold    decimal.Decimal `json:"totalSold"`
	TotalReturns decimal.Decimal `json:"totalReturns"`
	LastUpdated  time.Time       `json:"lastUpdated"`
}

// Movement is an immutable log entry of a single quantity change. Movements
// are only ever created, never updated.
type Movement struct {
	ItemCode         string          `json:"itemCode"`
	Quantity         decimal.Decimal `json:"quantity"`
	Direction        Direction       `json:"direction"`
	SourceDocumentID string          `json:"sourceDocumentId"`
	Timestamp        time.Time       `json:"timestamp"`
}

// Line is one document line item as seen by the ledger.
type Line struct {
	ItemCode  string
	ItemName  string
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	TaxRate   decimal.Decimal
}
