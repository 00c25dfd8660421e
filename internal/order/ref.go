package order

import (
	"fmt"
	"strings"
)

const refPrefix = "order-"

// ExternalRef builds the opaque reference sent to the payment gateway. The
// webhook path resolves it back to an order id with OrderIDFromRef.
func ExternalRef(orderID string) string {
	return refPrefix + orderID
}

// OrderIDFromRef extracts the order id from a gateway external reference.
// Bare ids without the prefix are accepted for compatibility with manually
// created intents.
func OrderIDFromRef(ref string) (string, error) {
	id := strings.TrimPrefix(ref, refPrefix)
	if id == "" {
		return "", fmt.Errorf("external reference %q carries no order id", ref)
	}
	return id, nil
}
