// Package idset provides a small generic set of unsigned integer ids,
// along with parsing/formatting to and from the Linux cgroup list-format
// used by files such as cpuset.cpus ("0-7,11").
package idset

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ID is any unsigned integer type usable as a set element (core numbers,
// NUMA node numbers, etc).
type ID interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// CoreID identifies a CPU core number as it appears in cpuset.cpus.
type CoreID uint16

// Set is an unordered collection of unique ids of type T.
type Set[T ID] struct {
	m map[T]struct{}
}

// Empty returns a new empty set.
func Empty[T ID]() *Set[T] {
	return &Set[T]{m: make(map[T]struct{})}
}

// From builds a set containing the given ids.
func From[T ID](ids []T) *Set[T] {
	s := Empty[T]()
	for _, id := range ids {
		s.Insert(id)
	}
	return s
}

// Parse parses a cgroup list-format string ("1,3-5,9") into a Set.
//
// Ranges may be given in either order ("11-7" behaves like "7-11"); this
// matches the permissive behavior cgroup list files tolerate on read.
func Parse[T ID](raw string) *Set[T] {
	s := Empty[T]()
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s
	}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if idx := strings.IndexByte(part, '-'); idx >= 0 {
			lo, err1 := strconv.ParseUint(strings.TrimSpace(part[:idx]), 10, 64)
			hi, err2 := strconv.ParseUint(strings.TrimSpace(part[idx+1:]), 10, 64)
			if err1 != nil || err2 != nil {
				continue
			}
			if lo > hi {
				lo, hi = hi, lo
			}
			for v := lo; v <= hi; v++ {
				s.Insert(T(v))
			}
			continue
		}
		v, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			continue
		}
		s.Insert(T(v))
	}
	return s
}

// Insert adds id to the set.
func (s *Set[T]) Insert(id T) {
	s.m[id] = struct{}{}
}

// Remove drops id from the set, if present.
func (s *Set[T]) Remove(id T) {
	delete(s.m, id)
}

// Contains reports whether id is a member of the set.
func (s *Set[T]) Contains(id T) bool {
	_, ok := s.m[id]
	return ok
}

// Size returns the number of elements in the set.
func (s *Set[T]) Size() int {
	return len(s.m)
}

// Empty reports whether the set has no elements.
func (s *Set[T]) Empty() bool {
	return len(s.m) == 0
}

// Slice returns the sorted elements of the set.
func (s *Set[T]) Slice() []T {
	out := make([]T, 0, len(s.m))
	for id := range s.m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Union returns a new set containing the elements of both sets.
func (s *Set[T]) Union(o *Set[T]) *Set[T] {
	out := Empty[T]()
	for id := range s.m {
		out.Insert(id)
	}
	for id := range o.m {
		out.Insert(id)
	}
	return out
}

// Difference returns a new set containing elements of s not in o.
func (s *Set[T]) Difference(o *Set[T]) *Set[T] {
	out := Empty[T]()
	for id := range s.m {
		if !o.Contains(id) {
			out.Insert(id)
		}
	}
	return out
}

// String renders the set in cgroup list-format, with contiguous runs
// collapsed into ranges ("1-3,7,9-12").
func (s *Set[T]) String() string {
	ids := s.Slice()
	if len(ids) == 0 {
		return ""
	}

	var b strings.Builder
	start := ids[0]
	prev := ids[0]

	flush := func() {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		if start == prev {
			fmt.Fprintf(&b, "%d", start)
		} else {
			fmt.Fprintf(&b, "%d-%d", start, prev)
		}
	}

	for _, id := range ids[1:] {
		if id == prev+1 {
			prev = id
			continue
		}
		flush()
		start, prev = id, id
	}
	flush()

	return b.String()
}
