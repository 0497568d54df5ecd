package catalog

import (
	"time"

	"github.com/gofrs/uuid"
)

// Product is the catalog entry orders are placed against. Price is the
// live price; orders snapshot it at placement time. Stock is mutated only
// by order placement (conditional decrement) and catalog management.
type Product struct {
	ID          uuid.UUID `json:"id" db:"id"`
	StoreID     uuid.UUID `json:"store" db:"store_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Category    string    `json:"category" db:"category"`
	Price       float64   `json:"price" db:"price"`
	Stock       int       `json:"stock" db:"stock"`
	IsActive    bool      `json:"isActive" db:"is_active"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}
