package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLiteralHosts(t *testing.T) {
	got, err := Resolve([]string{"host1", "host2"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"host1", "host2"}, got)
}

func TestResolveSplicesInPlace(t *testing.T) {
	clusters := []Cluster{{Name: "cluster1", Hosts: []string{"host1", "host2"}}}
	got, err := Resolve([]string{"host0", "cluster1", "host3", "host0", "host1"}, clusters)
	require.NoError(t, err)
	assert.Equal(t, []string{"host0", "host1", "host2", "host3", "host0", "host1"}, got)
}

func TestResolveNested(t *testing.T) {
	clusters := []Cluster{
		{Name: "cluster1", Hosts: []string{"host1", "host2"}},
		{Name: "cluster2", Hosts: []string{"cluster1", "host3"}},
	}
	got, err := Resolve([]string{"cluster2"}, clusters)
	require.NoError(t, err)
	assert.Equal(t, []string{"host1", "host2", "host3"}, got)
}

func TestResolvePreservesDuplicatesFromTags(t *testing.T) {
	clusters := []Cluster{{Name: "all", Hosts: []string{"host1", "host1"}}}
	got, err := Resolve([]string{"all", "all"}, clusters)
	require.NoError(t, err)
	assert.Equal(t, []string{"host1", "host1", "host1", "host1"}, got)
}

func TestResolveSelfReference(t *testing.T) {
	clusters := []Cluster{{Name: "loop", Hosts: []string{"loop"}}}
	_, err := Resolve([]string{"loop"}, clusters)
	var cyclic *ErrCyclicClusterReference
	require.ErrorAs(t, err, &cyclic)
	assert.Equal(t, "loop", cyclic.Tag)
}

func TestResolveIndirectCycle(t *testing.T) {
	clusters := []Cluster{
		{Name: "a", Hosts: []string{"b"}},
		{Name: "b", Hosts: []string{"host1", "a"}},
	}
	_, err := Resolve([]string{"a"}, clusters)
	var cyclic *ErrCyclicClusterReference
	require.ErrorAs(t, err, &cyclic)
}

func TestResolveSameTagTwiceIsNotACycle(t *testing.T) {
	// The same tag on two sibling branches is legal; only re-entry on
	// one expansion path is cyclic.
	clusters := []Cluster{
		{Name: "pair", Hosts: []string{"host1", "host2"}},
		{Name: "both", Hosts: []string{"pair", "pair"}},
	}
	got, err := Resolve([]string{"both"}, clusters)
	require.NoError(t, err)
	assert.Equal(t, []string{"host1", "host2", "host1", "host2"}, got)
}

func TestResolveEmptyInput(t *testing.T) {
	got, err := Resolve(nil, []Cluster{{Name: "c", Hosts: []string{"h"}}})
	require.NoError(t, err)
	assert.Empty(t, got)
}
