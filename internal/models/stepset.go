package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math/bits"
)

// TotalSteps is the length of the hunt; step ids run 1..TotalSteps.
const TotalSteps = 13

// StepSet is an unordered set of step ids stored as a bitset. Bit i marks
// step i; ids outside 1..TotalSteps are never stored.
type StepSet uint16

func NewStepSet(ids ...int) StepSet {
	var s StepSet
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func validStep(id int) bool { return id >= 1 && id <= TotalSteps }

func (s StepSet) Has(id int) bool {
	return validStep(id) && s&(1<<uint(id)) != 0
}

// Add inserts id and reports whether the set changed.
func (s *StepSet) Add(id int) bool {
	if !validStep(id) || s.Has(id) {
		return false
	}
	*s |= 1 << uint(id)
	return true
}

func (s *StepSet) Clear() { *s = 0 }

func (s StepSet) Len() int { return bits.OnesCount16(uint16(s)) }

// Slice returns the ids in ascending order.
func (s StepSet) Slice() []int {
	out := make([]int, 0, s.Len())
	for id := 1; id <= TotalSteps; id++ {
		if s.Has(id) {
			out = append(out, id)
		}
	}
	return out
}

func (s StepSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

func (s *StepSet) UnmarshalJSON(data []byte) error {
	var ids []int
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewStepSet(ids...)
	return nil
}

// Value persists the set as a sorted JSON array, e.g. "[1,2,5]".
func (s StepSet) Value() (driver.Value, error) {
	b, err := s.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *StepSet) Scan(value interface{}) error {
	if value == nil {
		*s = 0
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for StepSet: %T", value)
	}
	if len(data) == 0 {
		*s = 0
		return nil
	}
	return s.UnmarshalJSON(data)
}
