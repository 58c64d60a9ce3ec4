package app

import (
	"math"

	"autoservice/pkg/domain"
)

// CanAssign decides whether a task of the given brand and complexity may be
// added to mechanic, whose tasks currently sum to currentSum. A nil mechanic
// means the lookup found nothing. It returns nil to admit.
//
// currentSum must be read from live data right before the call; the decision
// is only as fresh as that sum.
func CanAssign(mechanic *domain.Mechanic, brand string, complexity, currentSum int) error {
	if mechanic == nil {
		return domain.NotFound(domain.EntityMechanic)
	}
	if !mechanic.Services(brand) {
		return domain.BrandMismatch(brand, mechanic.Brands)
	}
	if complexity > mechanic.Capacity-currentSum {
		return domain.CapacityExceeded(saturatingAdd(currentSum, complexity), mechanic.Capacity)
	}
	return nil
}

// saturatingAdd adds two non-negative ints, clamping at math.MaxInt.
func saturatingAdd(a, b int) int {
	if b > math.MaxInt-a {
		return math.MaxInt
	}
	return a + b
}
