package engine

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/noah-isme/course-scheduler/internal/models"
	appErrors "github.com/noah-isme/course-scheduler/pkg/errors"
)

// Weights scales soft-constraint penalties. A zero weight disables that soft constraint.
type Weights struct {
	LoadImbalance int `json:"loadImbalance"`
	SessionGap    int `json:"sessionGap"`
	CrossLevel    int `json:"crossLevel"`
	ElectiveClash int `json:"electiveClash"`
}

// DefaultWeights returns the stock penalty weights.
func DefaultWeights() Weights {
	return Weights{LoadImbalance: 1, SessionGap: 1, CrossLevel: 2, ElectiveClash: 3}
}

// BreakWindow marks every overlapping timeslot as a break.
type BreakWindow struct {
	Day         int `json:"day"`
	StartMinute int `json:"startMinute"`
	EndMinute   int `json:"endMinute"`
}

// RuleNotice records a rule that was skipped without failing the run.
type RuleNotice struct {
	Key    string `json:"key"`
	RuleID string `json:"ruleId,omitempty"`
	Reason string `json:"reason"`
}

// RuleSet is the compiled, typed form of the active rules of one rule set version.
type RuleSet struct {
	MidtermExclusive bool          `json:"midtermExclusive"`
	BreakWindows     []BreakWindow `json:"breakWindows"`
	OverflowPercent  int           `json:"overflowPercent"`
	Weights          Weights       `json:"weights"`
	Notices          []RuleNotice  `json:"notices,omitempty"`
}

// RuleViolation is attached as error details when a hard-constraint rule is missing or malformed.
type RuleViolation struct {
	Key    string `json:"key"`
	RuleID string `json:"ruleId,omitempty"`
	Reason string `json:"reason"`
}

type midtermBlockValue struct {
	Exclusive *bool `json:"exclusive"`
}

type breakWindowValue struct {
	Windows []BreakWindow `json:"windows"`
}

type capacityLimitValue struct {
	OverflowPercent *int `json:"overflowPercent"`
}

type softWeightsValue struct {
	LoadImbalance *int `json:"loadImbalance"`
	SessionGap    *int `json:"sessionGap"`
	CrossLevel    *int `json:"crossLevel"`
	ElectiveClash *int `json:"electiveClash"`
}

// CompileRules turns stored rule records into a RuleSet. Unknown keys are ignored. A missing
// or malformed rule needed for hard constraints fails with ErrInvalidRequest; malformed soft
// rules are skipped and reported as notices.
func CompileRules(rules []models.Rule, timeslots []models.TimeSlot, defaults Weights) (*RuleSet, error) {
	set := &RuleSet{MidtermExclusive: true, Weights: defaults}

	active := make([]models.Rule, 0, len(rules))
	for _, rule := range rules {
		if rule.Active {
			active = append(active, rule)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Key == active[j].Key {
			return active[i].ID < active[j].ID
		}
		return active[i].Key < active[j].Key
	})

	seen := make(map[string]bool, len(active))
	for _, rule := range active {
		if seen[rule.Key] {
			set.Notices = append(set.Notices, RuleNotice{Key: rule.Key, RuleID: rule.ID, Reason: "duplicate active rule, first one wins"})
			continue
		}
		seen[rule.Key] = true

		switch rule.Key {
		case models.RuleKeyMidtermBlock:
			var value midtermBlockValue
			if err := decodeRule(rule, &value); err != nil {
				return nil, err
			}
			if value.Exclusive != nil {
				set.MidtermExclusive = *value.Exclusive
			}
		case models.RuleKeyBreakWindow:
			var value breakWindowValue
			if err := decodeRule(rule, &value); err != nil {
				return nil, err
			}
			for _, window := range value.Windows {
				if window.Day < 0 || window.Day > 6 || window.EndMinute <= window.StartMinute {
					return nil, malformedRule(rule, fmt.Sprintf("invalid window day=%d %d-%d", window.Day, window.StartMinute, window.EndMinute))
				}
			}
			set.BreakWindows = value.Windows
		case models.RuleKeyCapacityLimit:
			var value capacityLimitValue
			if err := decodeRule(rule, &value); err != nil {
				return nil, err
			}
			if value.OverflowPercent != nil {
				if *value.OverflowPercent < 0 || *value.OverflowPercent > 100 {
					return nil, malformedRule(rule, "overflowPercent must be between 0 and 100")
				}
				set.OverflowPercent = *value.OverflowPercent
			}
		case models.RuleKeySoftWeights:
			var value softWeightsValue
			if err := json.Unmarshal(rule.Value, &value); err != nil {
				set.Notices = append(set.Notices, RuleNotice{Key: rule.Key, RuleID: rule.ID, Reason: "malformed value ignored"})
				continue
			}
			weights, ok := applyWeights(set.Weights, value)
			if !ok {
				set.Notices = append(set.Notices, RuleNotice{Key: rule.Key, RuleID: rule.ID, Reason: "negative weight ignored"})
				continue
			}
			set.Weights = weights
		default:
			set.Notices = append(set.Notices, RuleNotice{Key: rule.Key, RuleID: rule.ID, Reason: "unknown rule key ignored"})
		}
	}

	if !seen[models.RuleKeyMidtermBlock] {
		for _, slot := range timeslots {
			if slot.IsMidterm {
				return nil, appErrors.WithDetails(
					appErrors.Clone(appErrors.ErrInvalidRequest, "rule midtermBlock is required when midterm timeslots exist"),
					RuleViolation{Key: models.RuleKeyMidtermBlock, Reason: "missing"},
				)
			}
		}
	}
	return set, nil
}

func decodeRule(rule models.Rule, dest interface{}) error {
	if len(rule.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal(rule.Value, dest); err != nil {
		return malformedRule(rule, err.Error())
	}
	return nil
}

func malformedRule(rule models.Rule, reason string) error {
	return appErrors.WithDetails(
		appErrors.Clone(appErrors.ErrInvalidRequest, fmt.Sprintf("rule %s is malformed", rule.Key)),
		RuleViolation{Key: rule.Key, RuleID: rule.ID, Reason: reason},
	)
}

func applyWeights(base Weights, value softWeightsValue) (Weights, bool) {
	out := base
	for _, field := range []struct {
		src *int
		dst *int
	}{
		{value.LoadImbalance, &out.LoadImbalance},
		{value.SessionGap, &out.SessionGap},
		{value.CrossLevel, &out.CrossLevel},
		{value.ElectiveClash, &out.ElectiveClash},
	} {
		if field.src == nil {
			continue
		}
		if *field.src < 0 {
			return base, false
		}
		*field.dst = *field.src
	}
	return out, true
}

// blocksBreak reports whether slot falls inside one of the configured break windows.
func (r *RuleSet) blocksBreak(slot models.TimeSlot) bool {
	for _, window := range r.BreakWindows {
		if slot.DayOfWeek == window.Day && slot.StartMinute < window.EndMinute && window.StartMinute < slot.EndMinute {
			return true
		}
	}
	return false
}
