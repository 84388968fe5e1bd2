package expr

import (
	"errors"
	"math"
	"testing"
)

func TestCompileConstantFolding(t *testing.T) {
	c, err := Compile([]string{"2", "3", "+"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.isConstant {
		t.Fatalf("expected pure-constant expression to fold at compile time")
	}
	got, err := c.Eval(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 5 {
		t.Fatalf("got %v, want 5", got)
	}
}

func TestCompileVariableReference(t *testing.T) {
	c, err := Compile([]string{"p", "2", "*"}, []string{"p"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.isConstant {
		t.Fatalf("expected non-constant expression")
	}
	got, err := c.Eval([]float64{4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 8 {
		t.Fatalf("got %v, want 8", got)
	}
}

func TestCompileUnknownParameter(t *testing.T) {
	_, err := Compile([]string{"q"}, []string{"p"})
	if !errors.Is(err, ErrUnknownParameter) {
		t.Fatalf("expected ErrUnknownParameter, got %v", err)
	}
}

func TestEvalDivisionByZero(t *testing.T) {
	c, err := Compile([]string{"p", "0", "/"}, []string{"p"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = c.Eval([]float64{1})
	if !errors.Is(err, ErrNumericError) {
		t.Fatalf("expected ErrNumericError, got %v", err)
	}
}

func TestBuiltinFunctions(t *testing.T) {
	tests := []struct {
		name   string
		tokens []string
		want   float64
	}{
		{"max", []string{"3", "7", "max"}, 7},
		{"min", []string{"3", "7", "min"}, 3},
		{"abs", []string{"-4", "abs"}, 4},
		{"sqrt", []string{"9", "sqrt"}, 3},
		{"ceil", []string{"1.2", "ceil"}, 2},
		{"floor", []string{"1.8", "floor"}, 1},
		{"fact", []string{"5", "fact"}, 120},
		{"if-true", []string{"1", "10", "20", "if"}, 10},
		{"if-false", []string{"0", "10", "20", "if"}, 20},
		{"and", []string{"1", "0", "&&"}, 0},
		{"or", []string{"1", "0", "||"}, 1},
		{"gt", []string{"5", "3", ">"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Compile(tt.tokens, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got, err := c.Eval(nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMalformedRPNStream(t *testing.T) {
	if _, err := Compile([]string{"+"}, nil); err == nil {
		t.Fatalf("expected error for underflowed operator stack")
	}
	if _, err := Compile([]string{"1", "2"}, nil); err == nil {
		t.Fatalf("expected error for residual operand stack")
	}
}
