// Command sceneloader is a stand-in for the out-of-scope 3D scene-authoring
// tool (spec.md §1 Non-goals): it reads a Wavefront OBJ file via
// internal/scene and calls insert_objects against a running Master, the
// same client-facing operation a real authoring tool would drive.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/mwindels/steadyum-go/internal/geom"
	"github.com/mwindels/steadyum-go/internal/httpapi"
	"github.com/mwindels/steadyum-go/internal/ids"
	"github.com/mwindels/steadyum-go/internal/model"
	"github.com/mwindels/steadyum-go/internal/scene"
)

func main() {
	masterAddr := flag.String("master-addr", "", "HTTP address of the Master coordinator")
	sceneFlag := flag.String("scene-uuid", "", "the scene to insert into")
	objPath := flag.String("obj", "", "path to a Wavefront OBJ file")
	bodyTypeFlag := flag.String("body-type", "static", "dynamic, kinematic, or static")
	density := flag.Float64("density", 1, "body density, ignored for static bodies")
	x := flag.Float64("x", 0, "world-space X position")
	y := flag.Float64("y", 0, "world-space Y position")
	z := flag.Float64("z", 0, "world-space Z position")
	flag.Parse()

	logger := log.New(os.Stderr, "[sceneloader] ", log.LstdFlags)

	if *masterAddr == "" || *sceneFlag == "" || *objPath == "" {
		logger.Fatalf("--master-addr, --scene-uuid, and --obj are required")
	}
	sceneID, err := ids.ParseSceneID(*sceneFlag)
	if err != nil {
		logger.Fatalf("parse --scene-uuid: %v", err)
	}
	bodyType, err := parseBodyType(*bodyTypeFlag)
	if err != nil {
		logger.Fatalf("parse --body-type: %v", err)
	}

	bodies, err := scene.LoadFile(*objPath, scene.Placement{
		BodyType: bodyType,
		Density:  *density,
		Position: geom.Vector{X: *x, Y: *y, Z: *z},
	})
	if err != nil {
		logger.Fatalf("load %q: %v", *objPath, err)
	}

	client := httpapi.NewClient()
	if err := client.InsertObjects(context.Background(), *masterAddr, sceneID, bodies); err != nil {
		logger.Fatalf("insert_objects: %v", err)
	}
	logger.Printf("inserted %d bodies from %q into scene %s", len(bodies), *objPath, sceneID)
}

func parseBodyType(s string) (model.BodyType, error) {
	switch s {
	case "dynamic":
		return model.BodyDynamic, nil
	case "kinematic":
		return model.BodyKinematic, nil
	case "static":
		return model.BodyStatic, nil
	default:
		return 0, errUnknownBodyType(s)
	}
}

type errUnknownBodyType string

func (e errUnknownBodyType) Error() string {
	return "unknown body type " + string(e) + " (want dynamic, kinematic, or static)"
}
