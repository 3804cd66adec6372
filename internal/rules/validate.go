package rules

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"warescan/internal/types"
)

var structValidator = validator.New()

// ValidatePayload checks a rule's condition payload against the schema for
// its rule type. Malformed rules are marked inactive by the store and
// excluded from evaluation.
func ValidatePayload(ruleType types.RuleType, payload Payload) error {
	conds, err := payload.Conditions()
	if err != nil {
		return err
	}
	for i, c := range conds {
		if err := structValidator.Struct(c); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}

	switch ruleType {
	case types.RuleStagnantPallets:
		if err := requireHours(payload, "time_threshold_hours"); err != nil {
			return err
		}
		return requireLocationTypes(payload, "location_types")

	case types.RuleUncoordinatedLots:
		theta, ok := payload.Float("completion_threshold")
		if !ok {
			return fmt.Errorf("completion_threshold is required")
		}
		if theta <= 0 || theta > 1 {
			return fmt.Errorf("completion_threshold must be in (0,1], got %v", theta)
		}
		return requireLocationTypes(payload, "location_types")

	case types.RuleOvercapacity:
		if payload.Bool("check_all_locations") {
			return nil
		}
		if len(payload.StringList("location_types")) == 0 && len(payload.StringList("zones")) == 0 {
			return fmt.Errorf("overcapacity needs check_all_locations or a location_types/zones filter")
		}
		return nil

	case types.RuleInvalidLocation:
		if !payload.Bool("check_undefined_locations") && !payload.Bool("check_impossible_locations") {
			return fmt.Errorf("invalid_location needs at least one check enabled")
		}
		return nil

	case types.RuleDataIntegrity:
		if !payload.Bool("check_duplicate_scans") {
			return fmt.Errorf("data_integrity needs check_duplicate_scans")
		}
		return nil

	case types.RuleLocationSpecificStagnant:
		if _, ok := payload.String("location_pattern"); !ok {
			return fmt.Errorf("location_pattern is required")
		}
		return requireHours(payload, "time_threshold_hours")

	case types.RuleTemperatureZoneMismatch:
		if len(payload.StringList("product_patterns")) == 0 {
			return fmt.Errorf("product_patterns is required")
		}
		if len(payload.StringList("prohibited_zones")) == 0 {
			return fmt.Errorf("prohibited_zones is required")
		}
		if m, ok := payload.Float("time_threshold_minutes"); ok && m < 0 {
			return fmt.Errorf("time_threshold_minutes must be >= 0")
		}
		return nil

	case types.RuleLocationMappingError:
		if !payload.Bool("validate_location_types") && !payload.Bool("check_pattern_consistency") {
			return fmt.Errorf("location_mapping_error needs at least one check enabled")
		}
		return nil
	}

	// Unknown rule types are routed to the null evaluator at run time; the
	// payload itself is not a reason to deactivate them.
	return nil
}

func requireHours(p Payload, key string) error {
	h, ok := p.Float(key)
	if !ok {
		return fmt.Errorf("%s is required", key)
	}
	if h <= 0 {
		return fmt.Errorf("%s must be > 0, got %v", key, h)
	}
	return nil
}

func requireLocationTypes(p Payload, key string) error {
	lts := p.LocationTypes(key)
	if len(lts) == 0 {
		return fmt.Errorf("%s is required", key)
	}
	for _, lt := range lts {
		if !types.ValidLocationType(lt) {
			return fmt.Errorf("unknown location type %q", lt)
		}
	}
	return nil
}
