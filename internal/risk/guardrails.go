package risk

// guardrails.go — single source of truth for tunable parameters and their
// bounds. Any externally proposed value must pass Validate before it is
// written into settings.

import (
	"context"
	"fmt"
	"strconv"

	"github.com/alejandrodnm/kalshibot/internal/ports"
)

// ParamType distingue tunables enteros de flotantes.
type ParamType string

const (
	ParamInt   ParamType = "int"
	ParamFloat ParamType = "float"
)

// ParamSpec describe un tunable: descripción, default y rango permitido.
type ParamSpec struct {
	Description string
	Default     float64
	Min         float64
	Max         float64
	Type        ParamType
}

// TunableParams es la tabla de guardrails de todos los parámetros ajustables.
var TunableParams = map[string]ParamSpec{
	"bond_stop_loss_cents": {
		Description: "Bond stop-loss threshold in price units (e.g. 0.06 = 6¢ drop triggers exit)",
		Default:     0.06, Min: 0.02, Max: 0.10, Type: ParamFloat,
	},
	"stop_loss_threshold": {
		Description: "Percentage-based stop-loss for MM and BTC strategies (e.g. 0.50 = exit at 50% loss of entry value)",
		Default:     0.50, Min: 0.20, Max: 0.70, Type: ParamFloat,
	},
	"btc_take_profit_pct": {
		Description: "BTC take-profit percentage (e.g. 0.30 = exit at 30% gain)",
		Default:     0.30, Min: 0.10, Max: 0.60, Type: ParamFloat,
	},
	"mm_max_hold_hours": {
		Description: "Maximum hours to hold a market-making position before forced exit",
		Default:     4, Min: 1, Max: 12, Type: ParamInt,
	},
	"bond_pre_expiry_sec": {
		Description: "Seconds before market close to exit bond positions",
		Default:     300, Min: 60, Max: 900, Type: ParamInt,
	},
	"mm_pre_expiry_sec": {
		Description: "Seconds before market close to exit market-making positions",
		Default:     600, Min: 120, Max: 1800, Type: ParamInt,
	},
	"btc_pre_expiry_sec": {
		Description: "Seconds before market close to exit BTC 15-min positions",
		Default:     60, Min: 15, Max: 300, Type: ParamInt,
	},
	"max_position_pct": {
		Description: "Maximum single position size as fraction of bankroll (e.g. 0.15 = 15%)",
		Default:     0.15, Min: 0.05, Max: 0.25, Type: ParamFloat,
	},
	"daily_loss_limit_pct": {
		Description: "Daily loss limit as fraction of bankroll (e.g. 0.03 = 3%)",
		Default:     0.03, Min: 0.01, Max: 0.10, Type: ParamFloat,
	},
}

// ValidationError indica que un valor propuesto viola su guardrail.
type ValidationError struct {
	Key     string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("guardrail violation for %s: %s", e.Key, e.Message)
}

// Validate comprueba un valor propuesto contra su guardrail: coerción de
// tipo y chequeo de rango. Devuelve el valor normalizado listo para
// persistir, o un *ValidationError.
func Validate(key, raw string) (string, error) {
	spec, ok := TunableParams[key]
	if !ok {
		return "", &ValidationError{Key: key, Message: "unknown parameter"}
	}

	var value float64
	switch spec.Type {
	case ParamInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return "", &ValidationError{Key: key, Message: fmt.Sprintf("cannot convert %q to int", raw)}
		}
		value = float64(n)
	default:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", &ValidationError{Key: key, Message: fmt.Sprintf("cannot convert %q to float", raw)}
		}
		value = f
	}

	if value < spec.Min {
		return "", &ValidationError{Key: key, Message: fmt.Sprintf("value %v is below minimum %v", value, spec.Min)}
	}
	if value > spec.Max {
		return "", &ValidationError{Key: key, Message: fmt.Sprintf("value %v is above maximum %v", value, spec.Max)}
	}

	if spec.Type == ParamInt {
		return strconv.Itoa(int(value)), nil
	}
	return strconv.FormatFloat(value, 'f', -1, 64), nil
}

// Params lee tunables desde settings con fallback al default del guardrail.
// Se lee en cada uso, nunca se cachea entre ciclos.
type Params struct {
	Settings ports.SettingsReader
}

// Float devuelve el valor actual de un tunable flotante.
func (p Params) Float(ctx context.Context, key string) float64 {
	spec, ok := TunableParams[key]
	if !ok {
		return 0
	}
	raw, err := p.Settings.GetSetting(ctx, key, "")
	if err != nil || raw == "" {
		return spec.Default
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return spec.Default
	}
	return f
}

// Int devuelve el valor actual de un tunable entero.
func (p Params) Int(ctx context.Context, key string) int {
	return int(p.Float(ctx, key))
}
