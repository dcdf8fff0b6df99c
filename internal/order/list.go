package order

import (
	"errors"
	"fmt"
)

// ErrItemIndex is returned when a list operation targets a row that does not exist.
var ErrItemIndex = errors.New("order: item index out of range")

// ErrUnknownField is returned when an item update names an unsupported field.
var ErrUnknownField = errors.New("order: unknown item field")

// ErrInvalidUnit is returned when an item update names a unit outside the fixed set.
var ErrInvalidUnit = errors.New("order: invalid unit")

// NewList returns a list holding the single empty row a fresh form starts with.
func NewList() []Item {
	return []Item{emptyItem()}
}

func emptyItem() Item {
	return Item{Unit: UnitPieces}
}

// AppendItem adds an empty row to the end of the list.
func AppendItem(items []Item) []Item {
	out := make([]Item, 0, len(items)+1)
	out = append(out, items...)
	return append(out, emptyItem())
}

// UpdateItem returns a copy of the list with one field of one row replaced.
func UpdateItem(items []Item, index int, field, value string) ([]Item, error) {
	if index < 0 || index >= len(items) {
		return nil, fmt.Errorf("%w: %d", ErrItemIndex, index)
	}
	out := append([]Item(nil), items...)
	it := out[index]
	switch field {
	case "item", "name":
		it.Name = value
	case "quantity":
		it.Quantity = value
	case "unit":
		u := Unit(value)
		if !validUnit(u) {
			return nil, fmt.Errorf("%w %q", ErrInvalidUnit, value)
		}
		it.Unit = u
	case "budget":
		it.Budget = value
	case "note":
		it.Note = value
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	out[index] = it
	return out, nil
}

// RemoveItem returns a copy of the list without the row at index. The result may be empty.
func RemoveItem(items []Item, index int) ([]Item, error) {
	if index < 0 || index >= len(items) {
		return nil, fmt.Errorf("%w: %d", ErrItemIndex, index)
	}
	out := make([]Item, 0, len(items)-1)
	out = append(out, items[:index]...)
	return append(out, items[index+1:]...), nil
}

// ForStorage guarantees a persisted list is never zero rows long.
func ForStorage(items []Item) []Item {
	if len(items) == 0 {
		return NewList()
	}
	return items
}

func validUnit(u Unit) bool {
	for _, candidate := range Units() {
		if candidate == u {
			return true
		}
	}
	return false
}
