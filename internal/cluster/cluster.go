// Package cluster expands symbolic host-group tags into concrete
// hostnames.
package cluster

import (
	"fmt"
)

// Cluster is a named alias for an ordered list of hostnames or further
// cluster tags. Supplied by configuration and never mutated.
type Cluster struct {
	Name  string   `yaml:"name"`
	Hosts []string `yaml:"hosts"`
}

// ErrCyclicClusterReference reports a cluster tag that expands through
// itself, directly or via other tags.
type ErrCyclicClusterReference struct {
	Tag string
}

func (e *ErrCyclicClusterReference) Error() string {
	return fmt.Sprintf("cluster: cyclic reference through tag %q", e.Tag)
}

// Resolve replaces every token in hosts that names a cluster with that
// cluster's host list, depth-first and order preserving. Tokens that
// match no cluster are kept as literal hostnames. Duplicates are
// preserved. A tag that references itself fails with
// ErrCyclicClusterReference instead of recursing without bound.
func Resolve(hosts []string, clusters []Cluster) ([]string, error) {
	byName := make(map[string][]string, len(clusters))
	for _, c := range clusters {
		byName[c.Name] = c.Hosts
	}

	resolved := make([]string, 0, len(hosts))
	for _, host := range hosts {
		expanded, err := expand(host, byName, map[string]bool{})
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, expanded...)
	}
	return resolved, nil
}

// expand walks one token. visiting holds the tags on the current
// expansion path; re-entering one of them is a cycle.
func expand(token string, byName map[string][]string, visiting map[string]bool) ([]string, error) {
	members, ok := byName[token]
	if !ok {
		return []string{token}, nil
	}
	if visiting[token] {
		return nil, &ErrCyclicClusterReference{Tag: token}
	}
	visiting[token] = true
	defer delete(visiting, token)

	var out []string
	for _, member := range members {
		expanded, err := expand(member, byName, visiting)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	return out, nil
}
