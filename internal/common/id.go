package common

import (
	"github.com/google/uuid"
)

// NewOrderID generates a unique order ID with the "ord_" prefix
// Format: ord_<uuid>
func NewOrderID() string {
	return "ord_" + uuid.New().String()
}
