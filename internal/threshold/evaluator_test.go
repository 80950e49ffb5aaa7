package threshold

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ANIKETSHETTY47/containment-telemetry/internal/domain"
)

func bands() [5]domain.BandRange {
	return [5]domain.BandRange{
		{Min: -50, Max: 10},
		{Min: 10, Max: 30},
		{Min: 30, Max: 40},
		{Min: 40, Max: 50},
		{Min: 50, Max: 150},
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		v    float64
		want domain.StatusBand
	}{
		{5, domain.BandCold},
		{10, domain.BandCold},
		{10.5, domain.BandNormal},
		{30, domain.BandNormal},
		{30.1, domain.BandWarm},
		{40, domain.BandWarm},
		{45, domain.BandHot},
		{50.01, domain.BandCritical},
		{500, domain.BandCritical},
		{-80, domain.BandCold},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.v, bands()), "value %v", tc.v)
	}
}

func TestClassify_Gap(t *testing.T) {
	r := bands()
	r[2] = domain.BandRange{Min: 32, Max: 40}
	assert.Equal(t, domain.BandNormal, Classify(31, r))
}

func TestEvaluate(t *testing.T) {
	upper, lower := 30.0, 15.0
	cfg := domain.ThresholdConfiguration{
		Ranges:        bands(),
		Upper:         &upper,
		Lower:         &lower,
		CheckEnabled:  true,
		AutoSaveUpper: true,
		AutoSaveLower: true,
	}

	_, v := Evaluate(30, cfg)
	assert.Nil(t, v, "bound itself is not a breach")

	band, v := Evaluate(32, cfg)
	require.NotNil(t, v)
	assert.Equal(t, domain.TriggerUpperThreshold, v.Reason)
	assert.Equal(t, 30.0, v.Threshold)
	assert.Equal(t, domain.BandWarm, band)

	_, v = Evaluate(14, cfg)
	require.NotNil(t, v)
	assert.Equal(t, domain.TriggerLowerThreshold, v.Reason)

	cfg.AutoSaveLower = false
	_, v = Evaluate(14, cfg)
	assert.Nil(t, v)

	cfg.CheckEnabled = false
	band, v = Evaluate(32, cfg)
	assert.Nil(t, v)
	assert.Equal(t, domain.BandWarm, band)
}
