package catalog

import (
	"fmt"

	"warescan/internal/normalize"
	"warescan/internal/types"
)

// Expand generates the virtual locations a warehouse config describes:
// one STORAGE slot per aisle/rack/position/level plus the declared special
// areas. The generated locations are bound to the config and active.
func Expand(cfg types.WarehouseConfig) []types.Location {
	levels := cfg.Levels
	if cfg.Bidimensional || levels < 1 {
		levels = 1
	}
	capacity := cfg.DefaultCapacity
	if capacity < 1 {
		capacity = 1
	}

	out := make([]types.Location, 0, cfg.Aisles*cfg.Racks*cfg.Positions*levels+len(cfg.SpecialAreas))
	for a := 1; a <= cfg.Aisles; a++ {
		for r := 1; r <= cfg.Racks; r++ {
			rack := string(rune('A' + r - 1))
			for p := 1; p <= cfg.Positions; p++ {
				for l := 1; l <= levels; l++ {
					level := cfg.LevelName(l)
					out = append(out, types.Location{
						Code:        fmt.Sprintf("%02d-%s-%03d-%s", a, rack, p, level),
						WarehouseID: cfg.WarehouseID,
						ConfigID:    cfg.ID,
						Type:        types.LocationStorage,
						Capacity:    capacity,
						Zone:        "GENERAL",
						Structure:   &types.Structure{Aisle: a, Rack: rack, Position: p, Level: level},
						IsActive:    true,
					})
				}
			}
		}
	}

	for _, area := range cfg.SpecialAreas {
		cap := area.Capacity
		if cap < 1 {
			cap = capacity
		}
		zone := area.Zone
		if zone == "" {
			zone = "GENERAL"
		}
		out = append(out, types.Location{
			Code:        normalize.Canonical(area.Code),
			WarehouseID: cfg.WarehouseID,
			ConfigID:    cfg.ID,
			Type:        area.Type,
			Capacity:    cap,
			Zone:        zone,
			IsActive:    true,
		})
	}
	return out
}

// WithinBounds checks a decoded storage structure against the config's
// dimensions. The returned dimension names the first violation.
func WithinBounds(cfg *types.WarehouseConfig, aisle int, rack string, position int, level string) (dimension string, limit int, ok bool) {
	if cfg == nil {
		return "", 0, true
	}
	if cfg.Aisles > 0 && aisle > cfg.Aisles {
		return "aisle", cfg.Aisles, false
	}
	if cfg.Racks > 0 && len(rack) == 1 && int(rack[0]-'A')+1 > cfg.Racks {
		return "rack", cfg.Racks, false
	}
	if cfg.Positions > 0 && position > cfg.Positions {
		return "position", cfg.Positions, false
	}
	levels := cfg.Levels
	if cfg.Bidimensional {
		levels = 1
	}
	if levels > 0 {
		idx := levelIndex(cfg, level)
		if idx > levels {
			return "level", levels, false
		}
	}
	return "", 0, true
}

func levelIndex(cfg *types.WarehouseConfig, level string) int {
	if len(level) != 1 {
		return 0
	}
	for i := 0; i < len(cfg.LevelNames); i++ {
		if string(cfg.LevelNames[i]) == level {
			return i + 1
		}
	}
	if cfg.LevelNames == "" {
		return int(level[0]-'A') + 1
	}
	// Level letter not in the declared names: past the end by definition.
	return len(cfg.LevelNames) + cfg.Levels + 1
}
