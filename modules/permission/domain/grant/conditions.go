package grant

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EvalContext carries the ambient facts a conditional grant is checked
// against. Now is fixed at the start of a resolution so every grant in one
// resolution sees the same clock.
type EvalContext struct {
	Now        time.Time
	ResourceID uuid.UUID
}

// Conditions restrict when and where a grant applies. The zero value is
// unconditional.
type Conditions struct {
	// TimeStart/TimeEnd bound the time of day ("HH:MM", inclusive start,
	// exclusive end). Both must be set together.
	TimeStart string `json:"time_start,omitempty"`
	TimeEnd   string `json:"time_end,omitempty"`
	// DaysOfWeek restricts to the listed weekdays when non-empty.
	DaysOfWeek []time.Weekday `json:"days_of_week,omitempty"`
	// LocationIDs restricts the grant to the listed locations when non-empty.
	LocationIDs []uuid.UUID `json:"location_ids,omitempty"`
	// AllowedFields/DeniedFields scope field-level visibility; they do not
	// affect whether the grant applies.
	AllowedFields []string `json:"allowed_fields,omitempty"`
	DeniedFields  []string `json:"denied_fields,omitempty"`
}

func (c Conditions) IsZero() bool {
	return c.TimeStart == "" && c.TimeEnd == "" &&
		len(c.DaysOfWeek) == 0 && len(c.LocationIDs) == 0 &&
		len(c.AllowedFields) == 0 && len(c.DeniedFields) == 0
}

// Matches reports whether the grant applies in the given context. A
// malformed condition yields an error; callers resolve that to no access.
func (c Conditions) Matches(evalCtx EvalContext) (bool, error) {
	if c.TimeStart != "" || c.TimeEnd != "" {
		if c.TimeStart == "" || c.TimeEnd == "" {
			return false, fmt.Errorf("time window requires both start and end, got start=%q end=%q", c.TimeStart, c.TimeEnd)
		}
		start, err := minutesOfDay(c.TimeStart)
		if err != nil {
			return false, err
		}
		end, err := minutesOfDay(c.TimeEnd)
		if err != nil {
			return false, err
		}
		now := evalCtx.Now.Hour()*60 + evalCtx.Now.Minute()
		var inWindow bool
		if start <= end {
			inWindow = now >= start && now < end
		} else {
			// Window crossing midnight, e.g. 22:00-06:00.
			inWindow = now >= start || now < end
		}
		if !inWindow {
			return false, nil
		}
	}

	if len(c.DaysOfWeek) > 0 {
		day := evalCtx.Now.Weekday()
		found := false
		for _, d := range c.DaysOfWeek {
			if d == day {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}

	if len(c.LocationIDs) > 0 {
		if evalCtx.ResourceID == uuid.Nil {
			return false, nil
		}
		found := false
		for _, id := range c.LocationIDs {
			if id == evalCtx.ResourceID {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}

	return true, nil
}

func minutesOfDay(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("malformed time-of-day %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
