package models

import (
	"encoding/json"
	"fmt"
)

// Distance is the strictly positive length of a section.
// The zero value is not a valid distance and is rejected by NewSection.
type Distance struct {
	value int
}

// NewDistance returns a Distance or ErrInvalidDistance when v <= 0.
func NewDistance(v int) (Distance, error) {
	if v <= 0 {
		return Distance{}, fmt.Errorf("%w: %d must be positive", ErrInvalidDistance, v)
	}
	return Distance{value: v}, nil
}

// MustDistance is NewDistance for constants known to be positive.
func MustDistance(v int) Distance {
	d, err := NewDistance(v)
	if err != nil {
		panic(err)
	}
	return d
}

// Value returns the raw length.
func (d Distance) Value() int {
	return d.value
}

func (d Distance) IsZero() bool {
	return d.value == 0
}

// Add returns d + other.
func (d Distance) Add(other Distance) Distance {
	return Distance{value: d.value + other.value}
}

// Subtract returns d - other. A section can never shrink to zero or below,
// so a non-positive remainder is ErrInvalidDistance.
func (d Distance) Subtract(other Distance) (Distance, error) {
	rest := d.value - other.value
	if rest <= 0 {
		return Distance{}, fmt.Errorf("%w: %d must be strictly less than %d", ErrInvalidDistance, other.value, d.value)
	}
	return Distance{value: rest}, nil
}

func (d Distance) String() string {
	return fmt.Sprintf("%d", d.value)
}

func (d Distance) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.value)
}

func (d *Distance) UnmarshalJSON(b []byte) error {
	var v int
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	parsed, err := NewDistance(v)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
