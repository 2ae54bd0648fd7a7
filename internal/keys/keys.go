// Package keys formats the pub/sub key schema of spec.md §6.2.
package keys

import (
	"fmt"

	"github.com/mwindels/steadyum-go/internal/geom"
	"github.com/mwindels/steadyum-go/internal/ids"
)

// Runner returns the command-queue key for a Worker.
func Runner(worker ids.WorkerID) string {
	return fmt.Sprintf("runner/%s", worker.String())
}

// Watch returns the queryable key a Worker answers with its published
// watch set for region.
func Watch(worker ids.WorkerID, region geom.RegionBounds) string {
	return fmt.Sprintf("steadyum/watch/%s?%s", worker.String(), region.String())
}

// ClientBodies returns the queryable key a Worker answers with its
// published client snapshot for a scene, region, and step.
func ClientBodies(scene ids.SceneID, region geom.RegionBounds, step uint64) string {
	return fmt.Sprintf("steadyum/client_bodies/%s?%s&%d", scene.String(), region.String(), step)
}
