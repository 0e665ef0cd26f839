package synth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"SynthFeed/internal/domain/models"
)

func TestEnforce(t *testing.T) {
	b := Boundary{Lower: 99, Upper: 101}

	tests := []struct {
		name      string
		candidate float64
		trend     models.Trend
		wantClose float64
		wantTrend models.Trend
	}{
		{"above upper clamps down", 102, models.TrendNeutral, 101, models.TrendDown},
		{"equal upper clamps down", 101, models.TrendUp, 101, models.TrendDown},
		{"below lower clamps up", 97, models.TrendNeutral, 99, models.TrendUp},
		{"equal lower clamps up", 99, models.TrendDown, 99, models.TrendUp},
		{"neutral inside stays", 100.5, models.TrendNeutral, 100.5, models.TrendNeutral},
		{"down pressure crosses mid", 99.9, models.TrendDown, 99.9, models.TrendNeutral},
		{"down pressure above mid keeps", 100.2, models.TrendDown, 100.2, models.TrendDown},
		{"down pressure exactly mid keeps", 100, models.TrendDown, 100, models.TrendDown},
		{"up pressure crosses mid", 100.1, models.TrendUp, 100.1, models.TrendNeutral},
		{"up pressure below mid keeps", 99.5, models.TrendUp, 99.5, models.TrendUp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, trend := Enforce(tt.candidate, b, tt.trend)
			assert.Equal(t, tt.wantClose, c)
			assert.Equal(t, tt.wantTrend, trend)
		})
	}
}

func TestEnforceCollapsedBoundary(t *testing.T) {
	b := Boundary{Lower: 109, Upper: 109}

	c, trend := Enforce(100, b, models.TrendNeutral)
	assert.Equal(t, 109.0, c)
	assert.Equal(t, models.TrendUp, trend)

	c, trend = Enforce(120, b, models.TrendNeutral)
	assert.Equal(t, 109.0, c)
	assert.Equal(t, models.TrendDown, trend)
}
