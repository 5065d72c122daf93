// Package set provides a minimal string set.
package set

import (
	"fmt"
	"sort"
	"strings"
)

// String defines the string set.
//
// You should initialize it with make(String),
// or use StringSliceToSet to convert an existing slice.
type String map[string]struct{}

// StringSliceToSet creates a new string set from the existing slice.
func StringSliceToSet(slice []string) String {
	set := make(String, len(slice))
	for _, s := range slice {
		set.Add(s)
	}
	return set
}

// Add adds an item to the set.
func (s String) Add(item string) {
	s[item] = struct{}{}
}

// Remove removes an item from the set.
func (s String) Remove(item string) {
	delete(s, item)
}

// Contains returns true if item is in the set.
func (s String) Contains(item string) bool {
	_, ok := s[item]
	return ok
}

// ToSlice converts the set into a sorted string slice.
func (s String) ToSlice() []string {
	slice := make([]string, 0, len(s))
	for str := range s {
		slice = append(slice, str)
	}
	sort.Strings(slice)
	return slice
}

func (s String) String() string {
	items := s.ToSlice()
	for i, item := range items {
		items[i] = fmt.Sprintf("%q", item)
	}
	return "{" + strings.Join(items, ", ") + "}"
}
