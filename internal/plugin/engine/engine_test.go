// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

package engine_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mkschreder/jucid/internal/plugin/engine"
)

func TestValue_Integer(t *testing.T) {
	tests := []struct {
		name string
		num  float64
		want int64
	}{
		{"zero", 0, 0},
		{"positive", 42, 42},
		{"negative", -13, -13},
		{"truncates fraction", 2.9, 2},
		{"truncates negative fraction", -2.9, -2},
		{"NaN", math.NaN(), 0},
		{"positive infinity", math.Inf(1), 0},
		{"negative infinity", math.Inf(-1), 0},
		{"above range", 1e300, math.MaxInt64},
		{"below range", -1e300, math.MinInt64},
		{"exactly 2^63", math.Ldexp(1, 63), math.MaxInt64},
		{"exactly -2^63", -math.Ldexp(1, 63), math.MinInt64},
		{"largest in range", math.Nextafter(math.Ldexp(1, 63), 0), int64(math.Nextafter(math.Ldexp(1, 63), 0))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := engine.NewValue(engine.KindNumber, tt.num, nil)
			assert.Equal(t, tt.want, v.Integer())
		})
	}
}

func TestValue_Accessors(t *testing.T) {
	v := engine.NewValue(engine.KindTable, 1.5, "ref")

	assert.Equal(t, engine.KindTable, v.Kind())
	assert.InDelta(t, 1.5, v.Number(), 0)
	assert.Equal(t, "ref", v.Ref())
	assert.Equal(t, engine.KindNil, engine.Value{}.Kind())
}
