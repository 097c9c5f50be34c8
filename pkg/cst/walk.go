package cst

import (
	"iter"

	"github.com/hashicorp/go-multierror"
	"gitlab.com/tozd/go/errors"
)

var (
	ErrChildOutsideParent = errors.Base("child range outside parent range")
	ErrUnorderedSiblings  = errors.Base("sibling ranges out of order")
	ErrInvertedRange      = errors.Base("range start after end")
)

// Flatten returns every node of the tree in pre-order: a node comes before
// its children and children keep their original order.
func Flatten(nodes []*Node) []*Node {
	out := make([]*Node, 0, len(nodes))
	for n := range All(nodes) {
		out = append(out, n)
	}
	return out
}

// All yields the same sequence as Flatten without building a slice.
func All(nodes []*Node) iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		walk(nodes, yield)
	}
}

func walk(nodes []*Node, yield func(*Node) bool) bool {
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if !yield(n) {
			return false
		}
		if !walk(n.Inner, yield) {
			return false
		}
	}
	return true
}

// Validate checks that every range is well formed, that children sit
// inside their parent and that siblings never go backwards. All violations
// are reported together.
func Validate(nodes []*Node) error {
	var result *multierror.Error
	validateLevel(nodes, nil, &result)
	return result.ErrorOrNil()
}

func validateLevel(nodes []*Node, parent *Node, result **multierror.Error) {
	prevEnd := -1
	if parent != nil {
		prevEnd = parent.Range.Start
	}
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if n.Range.Start > n.Range.End {
			*result = multierror.Append(*result, errors.WithDetails(ErrInvertedRange, "node", n.String()))
		}
		if parent != nil && !n.Range.Within(parent.Range) {
			*result = multierror.Append(*result, errors.WithDetails(ErrChildOutsideParent, "node", n.String(), "parent", parent.String()))
		}
		if n.Range.Start < prevEnd {
			*result = multierror.Append(*result, errors.WithDetails(ErrUnorderedSiblings, "node", n.String()))
		}
		prevEnd = n.Range.End
		validateLevel(n.Inner, n, result)
	}
}
