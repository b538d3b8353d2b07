package dice

import (
	"math"
	"strconv"
	"strings"
)

type signedTerm struct {
	sign int
	n    node
}

// Simplify folds the constant terms of a formula's top-level sum into a
// single number placed last: "1 + 1" becomes "2", "1 + 2d4 + 1" becomes
// "2d4 + 2". Nothing is rolled; dice and variable terms keep their text.
func Simplify(formula string) (string, error) {
	f, err := Parse(formula)
	if err != nil {
		return "", err
	}

	var terms []signedTerm
	flatten(f.root, 1, &terms)

	var constant float64
	var parts []string
	for _, t := range terms {
		if isConstant(t.n) {
			v, err := (&evalEnv{}).eval(t.n)
			if err != nil {
				return "", err
			}
			constant += float64(t.sign) * v
			continue
		}
		start, end := t.n.span()
		text := strings.TrimSpace(f.src[start:end])
		switch {
		case len(parts) == 0 && t.sign < 0:
			parts = append(parts, "-"+text)
		case len(parts) == 0:
			parts = append(parts, text)
		case t.sign < 0:
			parts = append(parts, "- "+text)
		default:
			parts = append(parts, "+ "+text)
		}
	}

	switch {
	case len(parts) == 0:
		return formatNumber(constant), nil
	case constant > 0:
		parts = append(parts, "+ "+formatNumber(constant))
	case constant < 0:
		parts = append(parts, "- "+formatNumber(-constant))
	}
	return strings.Join(parts, " "), nil
}

// flatten splits the top-level chain of additions and subtractions into signed terms
func flatten(n node, sign int, out *[]signedTerm) {
	switch n := n.(type) {
	case *binaryNode:
		if n.op == "+" || n.op == "-" {
			flatten(n.l, sign, out)
			if n.op == "-" {
				flatten(n.r, -sign, out)
			} else {
				flatten(n.r, sign, out)
			}
			return
		}
	case *unaryNode:
		if n.op == "-" {
			flatten(n.x, -sign, out)
		} else {
			flatten(n.x, sign, out)
		}
		return
	}
	*out = append(*out, signedTerm{sign: sign, n: n})
}

func formatNumber(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
