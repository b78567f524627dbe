package calc

import (
	"fmt"
	"sort"
)

type Type string

const (
	Addition       Type = "addition"
	Subtraction    Type = "subtraction"
	Multiplication Type = "multiplication"
	Division       Type = "division"
)

// MinInputs is the smallest input sequence any operation accepts.
const MinInputs = 2

// Operation evaluates an ordered sequence of inputs. Callers guarantee
// len(inputs) >= MinInputs.
type Operation func(inputs []float64) (float64, error)

var registry = map[Type]Operation{
	Addition:       add,
	Subtraction:    subtract,
	Multiplication: multiply,
	Division:       divide,
}

func add(inputs []float64) (float64, error) {
	sum := 0.0
	for _, v := range inputs {
		sum += v
	}
	return sum, nil
}

func subtract(inputs []float64) (float64, error) {
	acc := inputs[0]
	for _, v := range inputs[1:] {
		acc -= v
	}
	return acc, nil
}

func multiply(inputs []float64) (float64, error) {
	product := 1.0
	for _, v := range inputs {
		product *= v
	}
	return product, nil
}

func divide(inputs []float64) (float64, error) {
	for i := 1; i < len(inputs); i++ {
		if inputs[i] == 0 {
			return 0, fmt.Errorf("%w: inputs[%d] is zero", ErrDivisionByZero, i)
		}
	}
	acc := inputs[0]
	for _, v := range inputs[1:] {
		acc /= v
	}
	return acc, nil
}

func ParseType(s string) (Type, error) {
	t := Type(s)
	if _, ok := registry[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedOperation, s)
	}
	return t, nil
}

// Types lists the registered discriminators in lexical order.
func Types() []Type {
	out := make([]Type, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func Lookup(t Type) (Operation, error) {
	op, ok := registry[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedOperation, t)
	}
	return op, nil
}

// Evaluate applies the operation registered for t to inputs.
func Evaluate(t Type, inputs []float64) (float64, error) {
	op, err := Lookup(t)
	if err != nil {
		return 0, err
	}
	if len(inputs) < MinInputs {
		return 0, fmt.Errorf("%w: %s needs at least %d inputs, got %d", ErrInvalidInput, t, MinInputs, len(inputs))
	}
	return op(inputs)
}
