// Copyright © 2024 Genome Research Limited
// Author: Sendu Bala <sb10@sanger.ac.uk>.
//
//  This file is part of wr.
//
//  wr is free software: you can redistribute it and/or modify
//  it under the terms of the GNU Lesser General Public License as published by
//  the Free Software Foundation, either version 3 of the License, or
//  (at your option) any later version.
//
//  wr is distributed in the hope that it will be useful,
//  but WITHOUT ANY WARRANTY; without even the implied warranty of
//  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
//  GNU Lesser General Public License for more details.
//
//  You should have received a copy of the GNU Lesser General Public License
//  along with wr. If not, see <http://www.gnu.org/licenses/>.

package schedulerclient

import (
	"context"
	"fmt"
)

// InformDAGChange streams any vertices and edges not yet submitted.
// vertices is the full cumulative vertex set built so far by the workflow
// process; edges is the full cumulative edge set. Monotone: a vertex or edge
// already submitted on a prior call is never resubmitted, so callers may pass
// ever-growing slices on every call without needing to track what's new
// themselves.
//
// Guarded by a single mutex so concurrent callers observe one serialised
// stream, per spec §5.
func (c *Client) InformDAGChange(ctx context.Context, vertices []Vertex, edges []Edge) error {
	c.dagMu.Lock()
	defer c.dagMu.Unlock()

	if c.submittedCount >= len(vertices) {
		return nil
	}

	newVertices := vertices[c.submittedCount:]
	newUIDs := make(map[string]bool, len(newVertices))

	for _, v := range newVertices {
		newUIDs[v.UID] = true
	}

	incident := make([]Edge, 0, len(edges))

	for _, e := range edges {
		if newUIDs[e.FromUID] || newUIDs[e.ToUID] {
			incident = append(incident, e)
		}
	}

	if err := c.addVertices(ctx, newVertices); err != nil {
		return err
	}

	if len(incident) > 0 {
		if err := c.addEdges(ctx, incident); err != nil {
			return err
		}
	}

	c.submittedCount = len(vertices)

	return nil
}

func (c *Client) addVertices(ctx context.Context, vertices []Vertex) error {
	path := fmt.Sprintf("/scheduler/DAG/addVertices/%s/%s", c.Namespace, c.Run)

	return c.do(ctx, "PUT", path, vertices, nil)
}

func (c *Client) addEdges(ctx context.Context, edges []Edge) error {
	path := fmt.Sprintf("/scheduler/DAG/addEdges/%s/%s", c.Namespace, c.Run)

	return c.do(ctx, "PUT", path, edges, nil)
}
