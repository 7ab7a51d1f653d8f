// Package planner expands a topic into search queries.
package planner

import (
	"fmt"
	"strings"
)

// Depth controls how many query templates are used. Higher depths only ever
// append templates to the lower ones.
type Depth int

const (
	Quick Depth = iota
	Standard
	Deep
)

func (d Depth) String() string {
	switch d {
	case Quick:
		return "quick"
	case Standard:
		return "standard"
	case Deep:
		return "deep"
	default:
		return fmt.Sprintf("depth(%d)", int(d))
	}
}

// ParseDepth maps a depth name to a Depth. Matching is case-insensitive.
func ParseDepth(s string) (Depth, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "quick":
		return Quick, nil
	case "standard", "":
		return Standard, nil
	case "deep":
		return Deep, nil
	default:
		return Standard, fmt.Errorf("planner: unknown depth %q", s)
	}
}

// tiers holds the templates added at each depth, in order.
var tiers = [...][]string{
	Quick:    {"%s 竞品", "%s 对比", "%s 有哪些"},
	Standard: {"best %s alternatives", "%s vs", "%s 排行榜"},
	Deep:     {"%s 推荐", "%s 评测", "top %s tools"},
}

// Plan returns the ordered queries for topic at depth. Depths above Deep are
// treated as Deep.
func Plan(topic string, depth Depth) []string {
	if depth < Quick {
		depth = Quick
	}
	if depth > Deep {
		depth = Deep
	}

	var queries []string
	for d := Quick; d <= depth; d++ {
		for _, tmpl := range tiers[d] {
			queries = append(queries, fmt.Sprintf(tmpl, topic))
		}
	}
	return queries
}
