package features

import (
	"math"

	"github.com/rotisserie/eris"
)

// cyclicPeriods lists the periodic columns and their periods, in the order
// they are encoded. After encoding, the raw column is dropped so the model
// never sees both representations.
var cyclicPeriods = []struct {
	column string
	period float64
}{
	{"hour", 24},
	{"month", 12},
	{"weekday", 7},
	{"season", 4},
}

// CyclicEncode replaces each periodic column with a sin/cos pair:
// sin(2π·v/N) and cos(2π·v/N). Missing source columns are skipped.
func CyclicEncode(t *Table) error {
	for _, c := range cyclicPeriods {
		raw := t.Column(c.column)
		if raw == nil {
			continue
		}
		sin := make([]float64, len(raw))
		cos := make([]float64, len(raw))
		for i, v := range raw {
			sin[i], cos[i] = encodeCyclic(v, c.period)
		}
		if err := t.AddColumn(c.column+"_sin", sin); err != nil {
			return eris.Wrap(err, "features: cyclic encode")
		}
		if err := t.AddColumn(c.column+"_cos", cos); err != nil {
			return eris.Wrap(err, "features: cyclic encode")
		}
		t.DropColumn(c.column)
	}
	return nil
}

func encodeCyclic(value, period float64) (float64, float64) {
	if math.IsNaN(value) {
		return math.NaN(), math.NaN()
	}
	angle := 2 * math.Pi * value / period
	return math.Sin(angle), math.Cos(angle)
}
