package qstat

import (
	"errors"
	"fmt"
)

var ErrHierarchyCycle = errors.New("group hierarchy contains a cycle")

// GroupHierarchy maps a group to its parent group. Root groups map to "".
type GroupHierarchy map[string]string

// BuildGroupHierarchy collects the group tree from the summaries section. A
// summary without a group attribute describes the "all" group.
func BuildGroupHierarchy(d *Document) GroupHierarchy {
	h := make(GroupHierarchy)
	for _, s := range d.Summaries {
		for _, summary := range s.Summary {
			group, ok := summary.attr("group")
			if !ok {
				group = "all"
			}
			parent, _ := summary.attr("parent")
			h[group] = parent
		}
	}
	return h
}

// descendsFrom walks from group towards the root until it meets ancestor.
func (h GroupHierarchy) descendsFrom(group, ancestor string) (bool, error) {
	seen := make(map[string]bool)
	for group != ancestor {
		if seen[group] {
			return false, fmt.Errorf("%w: %q revisited while looking for %q", ErrHierarchyCycle, group, ancestor)
		}
		seen[group] = true
		parent, ok := h[group]
		if !ok || parent == "" {
			return false, nil
		}
		group = parent
	}
	return true, nil
}

// CheckGroupMember reports whether group is one of accepted or lies below one
// of them. An empty accepted list accepts everything. Unknown groups are not
// members. If a walk ran into a cycle and no other accepted group matched,
// the cycle is returned as an error next to false.
func CheckGroupMember(group string, accepted []string, h GroupHierarchy) (bool, error) {
	if len(accepted) == 0 {
		return true, nil
	}
	var cycleErr error
	for _, a := range accepted {
		ok, err := h.descendsFrom(group, a)
		if err != nil {
			cycleErr = err
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, cycleErr
}

func IsGroupMember(group string, accepted []string, h GroupHierarchy) bool {
	ok, _ := CheckGroupMember(group, accepted, h)
	return ok
}
