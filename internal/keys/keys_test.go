package keys

import (
	"testing"

	"github.com/mwindels/steadyum-go/internal/geom"
	"github.com/mwindels/steadyum-go/internal/ids"
	"github.com/stretchr/testify/require"
)

func TestKeyFormats(t *testing.T) {
	w := ids.NewWorkerID()
	s := ids.NewSceneID()
	region := geom.RegionBounds{Mins: [3]int64{0, 0, 0}, Maxs: [3]int64{100, 100, 100}}

	require.Equal(t, "runner/"+w.String(), Runner(w))
	require.Equal(t, "steadyum/watch/"+w.String()+"?0_0_0__100_100_100", Watch(w, region))
	require.Equal(t, "steadyum/client_bodies/"+s.String()+"?0_0_0__100_100_100&7", ClientBodies(s, region, 7))
}
