package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrequency(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Frequency
		wantErr bool
	}{
		{name: "monthly", input: "monthly", want: Frequency{Unit: FrequencyMonthly}},
		{name: "yearly upper case", input: "YEARLY", want: Frequency{Unit: FrequencyYearly}},
		{name: "biweekly with spaces", input: "  biweekly ", want: Frequency{Unit: FrequencyBiweekly}},
		{name: "custom with interval", input: "custom:45", want: Frequency{Unit: FrequencyCustom, IntervalDays: 45}},
		{name: "custom without interval", input: "custom", wantErr: true},
		{name: "custom zero interval", input: "custom:0", wantErr: true},
		{name: "custom negative interval", input: "custom:-3", wantErr: true},
		{name: "free text rejected", input: "every other tuesday", wantErr: true},
		{name: "empty rejected", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFrequency(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, CodeInvalidInput, CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFrequencySteps(t *testing.T) {
	months := map[FrequencyUnit]int{
		FrequencyMonthly:    1,
		FrequencyBimonthly:  2,
		FrequencyQuarterly:  3,
		FrequencyHalfyearly: 6,
		FrequencyYearly:     12,
	}
	for unit, want := range months {
		got, ok := Frequency{Unit: unit}.Months()
		require.True(t, ok, "unit %s should be month based", unit)
		assert.Equal(t, want, got)
	}

	days := []struct {
		freq Frequency
		want int
	}{
		{Frequency{Unit: FrequencyDaily}, 1},
		{Frequency{Unit: FrequencyWeekly}, 7},
		{Frequency{Unit: FrequencyBiweekly}, 14},
		{Frequency{Unit: FrequencyCustom, IntervalDays: 10}, 10},
	}
	for _, tt := range days {
		got, ok := tt.freq.Days()
		require.True(t, ok, "%s should be day based", tt.freq)
		assert.Equal(t, tt.want, got)
	}

	_, ok := Frequency{Unit: FrequencyMonthly}.Days()
	assert.False(t, ok)
	_, ok = Frequency{Unit: FrequencyWeekly}.Months()
	assert.False(t, ok)
}

func TestFrequencyJSONRoundTrip(t *testing.T) {
	for _, f := range []Frequency{
		{Unit: FrequencyMonthly},
		{Unit: FrequencyCustom, IntervalDays: 21},
	} {
		data, err := json.Marshal(f)
		require.NoError(t, err)

		var back Frequency
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, f, back)
	}

	var f Frequency
	err := json.Unmarshal([]byte(`"sometimes"`), &f)
	require.Error(t, err)
}

func TestFrequencyScan(t *testing.T) {
	var f Frequency
	require.NoError(t, f.Scan("quarterly"))
	assert.Equal(t, FrequencyQuarterly, f.Unit)

	require.NoError(t, f.Scan([]byte("custom:30")))
	assert.Equal(t, Frequency{Unit: FrequencyCustom, IntervalDays: 30}, f)

	assert.Error(t, f.Scan(42))
}
