package risk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_UnknownKey(t *testing.T) {
	_, err := Validate("nonexistent_param", "0.5")
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "nonexistent_param", verr.Key)
	assert.Contains(t, verr.Message, "unknown parameter")
}

func TestValidate_RangeBounds(t *testing.T) {
	tests := []struct {
		key   string
		raw   string
		valid bool
	}{
		{"bond_stop_loss_cents", "0.06", true},
		{"bond_stop_loss_cents", "0.02", true},  // límite inferior incluido
		{"bond_stop_loss_cents", "0.10", true},  // límite superior incluido
		{"bond_stop_loss_cents", "0.01", false}, // por debajo
		{"bond_stop_loss_cents", "0.15", false}, // por encima
		{"mm_max_hold_hours", "1", true},
		{"mm_max_hold_hours", "12", true},
		{"mm_max_hold_hours", "13", false},
		{"mm_max_hold_hours", "0", false},
		{"daily_loss_limit_pct", "0.03", true},
		{"daily_loss_limit_pct", "0.11", false},
	}

	for _, tt := range tests {
		_, err := Validate(tt.key, tt.raw)
		if tt.valid {
			assert.NoError(t, err, "%s=%s", tt.key, tt.raw)
		} else {
			assert.Error(t, err, "%s=%s", tt.key, tt.raw)
		}
	}
}

func TestValidate_TypeCoercion(t *testing.T) {
	// Un tunable entero rechaza flotantes.
	_, err := Validate("mm_max_hold_hours", "4.5")
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "cannot convert")

	// Basura no numérica.
	_, err = Validate("stop_loss_threshold", "lots")
	assert.Error(t, err)
}

func TestValidate_NormalizesValue(t *testing.T) {
	got, err := Validate("mm_max_hold_hours", "6")
	require.NoError(t, err)
	assert.Equal(t, "6", got)

	got, err = Validate("btc_take_profit_pct", "0.30")
	require.NoError(t, err)
	assert.Equal(t, "0.3", got)
}

func TestParams_FallbackToDefaults(t *testing.T) {
	p := Params{Settings: fakeSettings{}}
	ctx := context.Background()

	assert.InDelta(t, 0.06, p.Float(ctx, "bond_stop_loss_cents"), 1e-9)
	assert.InDelta(t, 0.15, p.Float(ctx, "max_position_pct"), 1e-9)
	assert.Equal(t, 4, p.Int(ctx, "mm_max_hold_hours"))
	assert.Equal(t, 300, p.Int(ctx, "bond_pre_expiry_sec"))
}

func TestParams_ReadsOverrides(t *testing.T) {
	p := Params{Settings: fakeSettings{
		"bond_stop_loss_cents": "0.08",
		"mm_max_hold_hours":    "8",
	}}
	ctx := context.Background()

	assert.InDelta(t, 0.08, p.Float(ctx, "bond_stop_loss_cents"), 1e-9)
	assert.Equal(t, 8, p.Int(ctx, "mm_max_hold_hours"))
}

func TestParams_GarbageSettingFallsBack(t *testing.T) {
	p := Params{Settings: fakeSettings{"stop_loss_threshold": "whoops"}}
	assert.InDelta(t, 0.50, p.Float(context.Background(), "stop_loss_threshold"), 1e-9)
}
