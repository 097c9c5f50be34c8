// Package diff renders readable differences for test failures.
package diff

import (
	"fmt"
	"strings"

	"github.com/k0kubun/pp/v3"
	"github.com/kylelemons/godebug/diff"
)

func printer() *pp.PrettyPrinter {
	p := pp.New()
	p.SetExportedOnly(true)
	p.SetColoringEnabled(false)
	return p
}

// Pretty prints want and got with exported fields only and returns a line
// diff from got to want. It is empty when both print the same.
func Pretty[T any](want, got T) string {
	p := printer()
	return render(p.Sprint(want), p.Sprint(got))
}

// TokenData lays semantic token data out one 5-tuple per line before
// diffing, so a wrong tuple is easy to spot.
func TokenData(want, got []uint32) string {
	return render(tuples(want), tuples(got))
}

func tuples(data []uint32) string {
	var sb strings.Builder
	for i := 0; i < len(data); i += 5 {
		end := min(i+5, len(data))
		fmt.Fprintf(&sb, "%3d: %v\n", i/5, data[i:end])
	}
	return sb.String()
}

func render(want, got string) string {
	d := diff.Diff(got, want)
	if d == "" {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n\nto turn ACTUAL into EXPECTED:\n\n")
	sb.WriteString("add:    ➕\n")
	sb.WriteString("remove: ➖\n\n")
	sb.WriteString(strings.ReplaceAll(strings.ReplaceAll("\n"+d, "\n-", "\n➖"), "\n+", "\n➕"))
	return sb.String()
}
