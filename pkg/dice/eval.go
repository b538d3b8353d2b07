package dice

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jwebster45206/d20"
)

var errNotConstant = errors.New("formula is not constant")

// DieRoll captures the results for a single dice term.
type DieRoll struct {
	Sides   int   `json:"sides"`
	Results []int `json:"results"`
	Total   int   `json:"total"`
}

// Result is an evaluated formula.
type Result struct {
	Formula string    `json:"formula"`
	Total   float64   `json:"total"`
	Rolls   []DieRoll `json:"rolls,omitempty"`
}

// Evaluator rolls formulas with its own random source.
//
// # Determinism
//
// Two evaluators created with the same non-zero seed produce the same totals
// for the same sequence of Evaluate calls.
type Evaluator struct {
	mu     sync.Mutex
	roller *d20.Roller
}

// NewEvaluator creates an evaluator. A zero seed uses the current time.
func NewEvaluator(seed int64) *Evaluator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Evaluator{roller: d20.NewRoller(seed)}
}

// Evaluate parses and rolls formula. Variables are written "@name" and are
// looked up in vars; a variable missing from vars counts as 0.
func (e *Evaluator) Evaluate(formula string, vars map[string]float64) (Result, error) {
	f, err := Parse(formula)
	if err != nil {
		return Result{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	env := &evalEnv{vars: vars, roller: e.roller}
	total, err := env.eval(f.root)
	if err != nil {
		return Result{}, err
	}
	return Result{Formula: f.src, Total: total, Rolls: env.rolls}, nil
}

// Constant evaluates a formula with no dice and no variables
func (f *Formula) Constant() (float64, error) {
	env := &evalEnv{}
	return env.eval(f.root)
}

type evalEnv struct {
	vars   map[string]float64
	roller *d20.Roller
	rolls  []DieRoll
}

func (env *evalEnv) eval(n node) (float64, error) {
	switch n := n.(type) {
	case *numberNode:
		return n.value, nil
	case *varNode:
		if env.roller == nil {
			return 0, errNotConstant
		}
		return env.vars[n.name], nil
	case *diceNode:
		if env.roller == nil {
			return 0, errNotConstant
		}
		total, err := env.roll(n.count, n.sides)
		if err != nil {
			return 0, err
		}
		return float64(total), nil
	case *parenNode:
		return env.eval(n.x)
	case *unaryNode:
		x, err := env.eval(n.x)
		if err != nil {
			return 0, err
		}
		if n.op == "-" {
			return -x, nil
		}
		return x, nil
	case *binaryNode:
		l, err := env.eval(n.l)
		if err != nil {
			return 0, err
		}
		r, err := env.eval(n.r)
		if err != nil {
			return 0, err
		}
		switch n.op {
		case "+":
			return l + r, nil
		case "-":
			return l - r, nil
		case "*":
			return l * r, nil
		case "/":
			// division by zero yields an infinite or NaN total for the caller to reject
			return l / r, nil
		}
	case *callNode:
		args := make([]float64, len(n.args))
		for i, a := range n.args {
			v, err := env.eval(a)
			if err != nil {
				return 0, err
			}
			args[i] = v
		}
		switch n.fn {
		case "floor":
			return math.Floor(args[0]), nil
		case "ceil":
			return math.Ceil(args[0]), nil
		case "round":
			return math.Round(args[0]), nil
		case "abs":
			return math.Abs(args[0]), nil
		case "min":
			return math.Min(args[0], args[1]), nil
		case "max":
			return math.Max(args[0], args[1]), nil
		}
	}
	return 0, fmt.Errorf("%w: unsupported term", ErrInvalidFormula)
}

func (env *evalEnv) roll(count, sides int) (int, error) {
	// 0dN is a valid formula term; d20 rejects a zero count
	if count == 0 {
		env.rolls = append(env.rolls, DieRoll{Sides: sides, Results: []int{}})
		return 0, nil
	}
	out, err := env.roller.Dice(uint(count), uint(sides)).Roll()
	if err != nil {
		return 0, fmt.Errorf("%w: %dd%d: %w", ErrInvalidDiceSpec, count, sides, err)
	}
	env.rolls = append(env.rolls, DieRoll{Sides: sides, Results: out.DiceRolls, Total: out.Value})
	return out.Value, nil
}
