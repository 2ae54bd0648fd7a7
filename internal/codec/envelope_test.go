package codec

import (
	"testing"

	"github.com/mwindels/steadyum-go/internal/geom"
	"github.com/mwindels/steadyum-go/internal/model"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	msg := model.Step(model.RunnerMessage{}.Scene, 42)
	data, err := Encode(msg)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	var out model.RunnerMessage
	require.NoError(t, Decode(data, &out))
	require.Equal(t, msg, out)
}

func TestEncodeDecodeWatchedObjects(t *testing.T) {
	wo := model.WatchedObjects{
		Objects: []model.WatchEntry{
			{SweptAABB: geom.AABB{Mins: geom.Vector{X: 1}, Maxs: geom.Vector{X: 2}}},
		},
	}
	data, err := Encode(wo)
	require.NoError(t, err)

	var out model.WatchedObjects
	require.NoError(t, Decode(data, &out))
	require.Equal(t, wo, out)
}
