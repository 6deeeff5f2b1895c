package model

import "fmt"

// FulfillmentPolicy decides whether a shelter request's demand is met, given
// the number of outstanding promises, the number of fulfilled deliveries and
// the requested quantity. Policies must be pure.
type FulfillmentPolicy func(promised, fulfilled, requested int) bool

// AllPromisedDelivered is met once at least one promise was fulfilled and no
// promise is outstanding.
func AllPromisedDelivered(promised, fulfilled, _ int) bool {
	return fulfilled > 0 && promised == 0
}

// QuantityMet is met once the number of fulfilled deliveries reaches the
// requested quantity.
func QuantityMet(_, fulfilled, requested int) bool {
	return requested > 0 && fulfilled >= requested
}

// ManualOnly is never met; the shelter closes requests itself.
func ManualOnly(_, _, _ int) bool {
	return false
}

// Policy names accepted in configuration.
const (
	PolicyAllPromised = "all-promised"
	PolicyQuantity    = "quantity"
	PolicyManual      = "manual"
)

// PolicyByName resolves a configured policy name.
func PolicyByName(name string) (FulfillmentPolicy, error) {
	switch name {
	case PolicyAllPromised, "":
		return AllPromisedDelivered, nil
	case PolicyQuantity:
		return QuantityMet, nil
	case PolicyManual:
		return ManualOnly, nil
	}
	return nil, fmt.Errorf("unknown fulfillment policy %q", name)
}
