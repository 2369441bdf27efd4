package udf

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Combiner is the three-function contract for pre-aggregation:
// CreateCombiner turns the first value seen for a key into a partial
// result, MergeValue folds another raw value into a partial result,
// and MergeCombiners joins two partial results. MergeCombiners must be
// associative (arrival order across splits is nondeterministic).
type Combiner struct {
	CreateCombiner func(value string) string
	MergeValue     func(acc, value string) string
	MergeCombiners func(a, b string) string
}

var CombinerRegistry = map[string]Combiner{
	// sum: values are decimal integers, result is their sum.
	"sum": {
		CreateCombiner: func(v string) string { return v },
		MergeValue:     func(acc, v string) string { return addInts(acc, v) },
		MergeCombiners: func(a, b string) string { return addInts(a, b) },
	},
	// count: ignores the value, counts occurrences of the key.
	"count": {
		CreateCombiner: func(string) string { return "1" },
		MergeValue:     func(acc, _ string) string { return addInts(acc, "1") },
		MergeCombiners: func(a, b string) string { return addInts(a, b) },
	},
	// set_union: comma-joined sorted set of distinct values.
	"set_union": {
		CreateCombiner: func(v string) string { return v },
		MergeValue:     func(acc, v string) string { return unionSets(acc, v) },
		MergeCombiners: func(a, b string) string { return unionSets(a, b) },
	},
}

func GetCombiner(name string) (Combiner, error) {
	if c, ok := CombinerRegistry[name]; ok {
		return c, nil
	}
	return Combiner{}, fmt.Errorf("combiner %s not found", name)
}

func addInts(a, b string) string {
	x, _ := strconv.Atoi(a)
	y, _ := strconv.Atoi(b)
	return strconv.Itoa(x + y)
}

func unionSets(a, b string) string {
	seen := map[string]bool{}
	for _, part := range strings.Split(a+","+b, ",") {
		if part != "" {
			seen[part] = true
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}
