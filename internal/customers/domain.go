package customers

import "time"

// Collection is the store collection holding customer records.
const Collection = "customers"

// IDPrefix is the prefix of generated customer ids (CUST-N).
const IDPrefix = "CUST"

// Contact groups a customer's reachable details. Blank fields mean unknown;
// merges never overwrite a stored value with a blank one.
type Contact struct {
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	GSTIN   string `json:"gstin"`
}

// Customer is a long-lived party that billing documents reference.
type Customer struct {
	ID        string    `json:"customerId"`
	Name      string    `json:"customerName"`
	Contact   Contact   `json:"customerContact"`
	Companies []string  `json:"company"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ResolveInput describes the customer details arriving with a document.
type ResolveInput struct {
	// CustomerID, when set, is a hard reference: resolution fails if no such
	// record exists, it is never an upsert key.
	CustomerID string
	Name       string
	Contact    Contact
	// Company is the issuing company name, unioned into the customer's
	// company set after resolution.
	Company string
}
