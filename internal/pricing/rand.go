package pricing

import "math/rand"

// MathRand adapts *rand.Rand to the Rand interface. Each session owns its
// own instance; it is not shared across goroutines.
type MathRand struct {
	r *rand.Rand
}

// NewMathRand creates a MathRand seeded from the given source.
func NewMathRand(seed int64) *MathRand {
	return &MathRand{r: rand.New(rand.NewSource(seed))}
}

func (m *MathRand) Float64() float64     { return m.r.Float64() }
func (m *MathRand) NormFloat64() float64 { return m.r.NormFloat64() }
