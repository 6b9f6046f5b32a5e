package traffic

import (
	"encoding/json"
	"fmt"
)

// Lane identifies one of the two approaches into the intersection.
type Lane int

const (
	LaneEW Lane = iota
	LaneNS
)

// Lanes lists every approach in a fixed order.
var Lanes = [...]Lane{LaneEW, LaneNS}

func (l Lane) String() string {
	switch l {
	case LaneEW:
		return "EW"
	case LaneNS:
		return "NS"
	default:
		return fmt.Sprintf("Lane(%d)", int(l))
	}
}

// Other returns the crossing approach.
func (l Lane) Other() Lane {
	if l == LaneEW {
		return LaneNS
	}
	return LaneEW
}

// ParseLane accepts "EW" or "NS".
func ParseLane(s string) (Lane, error) {
	switch s {
	case "EW":
		return LaneEW, nil
	case "NS":
		return LaneNS, nil
	}
	return 0, fmt.Errorf("unknown lane %q (want EW or NS)", s)
}

func (l Lane) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *Lane) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseLane(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
