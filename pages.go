package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bitset"
)

var errPageRange = errors.New("invalid page range")

// maxPages is the largest page number a range may name.
const maxPages = 1 << 16

// parsePageRange parses a selection such as "1-3,7,10-" against a document
// of n pages. Pages are numbered from 1 in the selection and from 0 in the result.
// An empty selection selects every page. Open ranges stop at the last page.
func parsePageRange(ranges string, n int) (*bitset.BitSet, error) {
	sel := bitset.New(uint(max(n, 0)))
	ranges = strings.TrimSpace(ranges)
	if ranges == "" {
		for i := range n {
			sel.Set(uint(i))
		}
		return sel, nil
	}

	for part := range strings.SplitSeq(ranges, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		first, last, err := parseRangePart(part, n)
		if err != nil {
			return nil, err
		}
		for p := first; p <= last; p++ {
			sel.Set(uint(p - 1))
		}
	}
	if sel.None() {
		return nil, fmt.Errorf("%w: %q selects no pages", errPageRange, ranges)
	}
	return sel, nil
}

func parseRangePart(part string, n int) (first, last int, err error) {
	lo, hi, isRange := strings.Cut(part, "-")
	if !isRange {
		p, err := parsePageNumber(lo, n)
		return p, p, err
	}
	first, last = 1, n
	if s := strings.TrimSpace(lo); s != "" {
		if first, err = parsePageNumber(s, n); err != nil {
			return 0, 0, err
		}
	}
	if s := strings.TrimSpace(hi); s != "" {
		if last, err = parsePageNumber(s, n); err != nil {
			return 0, 0, err
		}
	}
	if first > last {
		return 0, 0, fmt.Errorf("%w: %q runs backwards", errPageRange, part)
	}
	return first, last, nil
}

func parsePageNumber(s string, n int) (int, error) {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a page number", errPageRange, s)
	}
	if p < 1 || p > n {
		return 0, fmt.Errorf("%w: page %d not in 1-%d", errPageRange, p, n)
	}
	return p, nil
}

// selectedPages lists the pages in sel in ascending order.
func selectedPages(sel *bitset.BitSet) []int {
	pages := make([]int, 0, sel.Count())
	for i, ok := sel.NextSet(0); ok; i, ok = sel.NextSet(i + 1) {
		pages = append(pages, int(i))
	}
	return pages
}
