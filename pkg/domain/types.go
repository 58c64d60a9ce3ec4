package domain

import "math"

// DefaultCapacity is the complexity budget given to a mechanic registered without one.
const DefaultCapacity = 10

// MaxComplexity bounds task complexity and mechanic capacity so sums fit
// the integer columns of every store backend.
const MaxComplexity = math.MaxInt32

// DefaultBrands are seeded into an empty brand catalogue.
var DefaultBrands = []string{"Audi", "BMW", "Toyota", "Ford"}

type Brand struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Mechanic struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Brands   BrandSet `json:"brands"`
	Capacity int      `json:"max_complexity"`
}

// Services reports whether the mechanic works on the given brand.
func (m Mechanic) Services(brand string) bool {
	return m.Brands.Contains(brand)
}

type Task struct {
	ID         string `json:"id"`
	MechanicID string `json:"mechanic_id"`
	Brand      string `json:"brand"`
	Name       string `json:"name"`
	Complexity int    `json:"complexity"`
}

// Workload summarizes how much of a mechanic's capacity is consumed.
type Workload struct {
	Mechanic  Mechanic `json:"mechanic"`
	Tasks     []Task   `json:"tasks"`
	Used      int      `json:"used"`
	Capacity  int      `json:"capacity"`
	Remaining int      `json:"remaining"`
}
