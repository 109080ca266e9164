// Package filter implements the query AST consumed by every store,
// grounded on rclone's fs.Filter option-bag idiom (fs/filter_test.go:
// MinSize/MaxSize/InActive-style boolean predicates composed into one
// struct).
package filter

import "github.com/robinhood-suite/robinhood4-sub002/internal/value"

// Op is a comparison or structural operator in the filter AST.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpRegex
	OpBitsAnySet
	OpBitsAllSet
	OpBitsAnyClear
	OpBitsAllClear
	OpAnd
	OpOr
	OpNot
	OpExists
)

// Filter is a node in the predicate tree. A leaf compares Field against
// Value with Op; AND/OR/NOT combine Children.
type Filter struct {
	Op       Op
	Field    string
	Value    value.Value
	Children []Filter
}

// And combines filters with AND, or returns the single filter unchanged.
func And(filters ...Filter) Filter {
	if len(filters) == 1 {
		return filters[0]
	}
	return Filter{Op: OpAnd, Children: filters}
}

// Or combines filters with OR.
func Or(filters ...Filter) Filter {
	if len(filters) == 1 {
		return filters[0]
	}
	return Filter{Op: OpOr, Children: filters}
}

// Not negates f.
func Not(f Filter) Filter { return Filter{Op: OpNot, Children: []Filter{f}} }

// Compare builds a leaf comparison filter.
func Compare(field string, op Op, v value.Value) Filter {
	return Filter{Op: op, Field: field, Value: v}
}

// SortKey orders results by Field, ascending unless Desc is set.
type SortKey struct {
	Field string
	Desc  bool
}

// Options mirrors robinhood's filter_options bag.
type Options struct {
	Skip      int64
	Limit     int64
	Sort      []SortKey
	One       bool
	SkipError bool
	Verbose   bool
	DryRun    bool
}

// OutputType selects between a plain projection and a report-style
// aggregation (robinhood's filter_output).
type OutputType int

const (
	OutputProjection OutputType = iota
	OutputAggregation
)

// Projection selects which fsentry/statx/xattr fields a backend should
// populate, mirroring robinhood's filter_projection.
type Projection struct {
	FsentryMask  uint32 // fsentry.Mask bits
	StatxMask    uint32 // fsentry.StatxMask bits
	InodeXattrs  []string
	NsXattrs     []string
}

// Output bundles OutputType with the corresponding projection/group info.
type Output struct {
	Type       OutputType
	Projection Projection
	GroupBy    []string
}
