package physics

import (
	"context"
	"testing"

	"github.com/mwindels/steadyum-go/internal/geom"
	"github.com/mwindels/steadyum-go/internal/ids"
	"github.com/mwindels/steadyum-go/internal/model"
	"github.com/stretchr/testify/require"
)

func TestStepIntegratesDynamicBody(t *testing.T) {
	e := NewStub()
	u := ids.NewBodyUUID()
	e.InsertBody(Body{
		UUID:   u,
		Cold:   model.ColdBody{BodyType: model.BodyDynamic, Shape: model.Shape{Kind: model.ShapeSphere, Radius: 1}},
		Radius: 1,
	})

	out, err := e.Step(context.Background(), StepInput{Gravity: geom.Vector{Y: -10}, DT: 0.01, Substeps: 10})
	require.NoError(t, err)
	require.Empty(t, out.Contacts)

	bodies := e.Bodies()
	require.Len(t, bodies, 1)
	require.Less(t, bodies[0].State.Position.Y, 0.0)
}

func TestStepUnionsContactsIntoComponent(t *testing.T) {
	e := NewStub()
	a := ids.NewBodyUUID()
	b := ids.NewBodyUUID()
	shape := model.Shape{Kind: model.ShapeSphere, Radius: 1}
	e.InsertBody(Body{UUID: a, Cold: model.ColdBody{BodyType: model.BodyStatic, Shape: shape}, Radius: 1})
	e.InsertBody(Body{UUID: b, Cold: model.ColdBody{BodyType: model.BodyStatic, Shape: shape}, Radius: 1, State: model.WarmBody{Position: geom.Vector{X: 0.5}}})

	out, err := e.Step(context.Background(), StepInput{Substeps: 1, DT: 0.01})
	require.NoError(t, err)
	require.Len(t, out.Components, 1)
	require.Len(t, out.Components[0].Bodies, 2)
}

func TestStepUnionsJoints(t *testing.T) {
	e := NewStub()
	a := ids.NewBodyUUID()
	b := ids.NewBodyUUID()
	shape := model.Shape{Kind: model.ShapeSphere, Radius: 1}
	e.InsertBody(Body{UUID: a, Cold: model.ColdBody{BodyType: model.BodyStatic, Shape: shape}, Radius: 1, State: model.WarmBody{Position: geom.Vector{X: 0}}})
	e.InsertBody(Body{UUID: b, Cold: model.ColdBody{BodyType: model.BodyStatic, Shape: shape}, Radius: 1, State: model.WarmBody{Position: geom.Vector{X: 100}}})
	e.AttachJoint(Joint{A: a, B: b})

	out, err := e.Step(context.Background(), StepInput{Substeps: 1, DT: 0.01})
	require.NoError(t, err)
	require.Len(t, out.Components, 1)
	require.ElementsMatch(t, []ids.BodyUUID{a, b}, out.Components[0].Bodies)
}

func TestRemoveBodyDropsJoints(t *testing.T) {
	e := NewStub()
	a := ids.NewBodyUUID()
	b := ids.NewBodyUUID()
	e.AttachJoint(Joint{A: a, B: b})
	e.RemoveBody(a)
	require.Empty(t, e.Joints())
}
