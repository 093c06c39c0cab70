// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package geo builds the geographic neighborhood network over language
// sites. Zone growth consults this network when restricting candidates to
// languages adjacent to a zone's current footprint.
//
// The network is a Gabriel graph over the planar site coordinates: an edge
// connects two sites exactly when no third site lies inside the circle
// whose diameter is the segment between them. The Gabriel graph is a
// connected subgraph of the Delaunay triangulation, which keeps the
// neighborhood structure close to the triangulation used by the original
// preprocessing without requiring a triangulation library.
package geo

import (
	"math"
	"sort"

	"github.com/Anaphory/contact-zones/services/sampler/data"
)

// Network is the immutable geographic adjacency structure.
//
// Thread Safety: Safe for concurrent use after construction.
type Network struct {
	n int

	// neighbors[l] lists the Gabriel neighbors of language l, sorted.
	neighbors [][]int

	// adjacent is the dense adjacency matrix.
	adjacent [][]bool

	// dist is the Euclidean distance matrix.
	dist [][]float64
}

// NewNetwork computes the Gabriel graph over the given sites.
//
// Inputs:
//   - sites: Site coordinates aligned to the feature table's language order.
//
// Outputs:
//   - *Network: Adjacency lists, adjacency matrix, and distance matrix.
//
// Performance: O(n^3) in the number of languages, which is negligible next
// to the sampling budget for realistic datasets (tens to low hundreds of
// languages).
func NewNetwork(sites *data.Sites) *Network {
	n := len(sites.X)
	net := &Network{
		n:         n,
		neighbors: make([][]int, n),
		adjacent:  make([][]bool, n),
		dist:      make([][]float64, n),
	}
	for i := 0; i < n; i++ {
		net.adjacent[i] = make([]bool, n)
		net.dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := math.Hypot(sites.X[i]-sites.X[j], sites.Y[i]-sites.Y[j])
			net.dist[i][j] = d
			net.dist[j][i] = d
		}
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if net.gabrielEdge(i, j) {
				net.adjacent[i][j] = true
				net.adjacent[j][i] = true
				net.neighbors[i] = append(net.neighbors[i], j)
				net.neighbors[j] = append(net.neighbors[j], i)
			}
		}
	}
	for i := range net.neighbors {
		sort.Ints(net.neighbors[i])
	}
	return net
}

// gabrielEdge reports whether (i,j) is a Gabriel edge: no third site k may
// lie strictly inside the circle with diameter ij, i.e.
// d(i,k)^2 + d(j,k)^2 < d(i,j)^2 for no k.
func (g *Network) gabrielEdge(i, j int) bool {
	dij := g.dist[i][j]
	sq := dij * dij
	for k := 0; k < g.n; k++ {
		if k == i || k == j {
			continue
		}
		dik := g.dist[i][k]
		djk := g.dist[j][k]
		if dik*dik+djk*djk < sq {
			return false
		}
	}
	return true
}

// Len returns the number of sites in the network.
func (g *Network) Len() int { return g.n }

// Neighbors returns the sorted neighbor list of language l.
// The returned slice must not be modified.
func (g *Network) Neighbors(l int) []int { return g.neighbors[l] }

// Adjacent reports whether languages a and b share an edge.
func (g *Network) Adjacent(a, b int) bool { return g.adjacent[a][b] }

// Distance returns the Euclidean distance between languages a and b.
func (g *Network) Distance(a, b int) float64 { return g.dist[a][b] }
