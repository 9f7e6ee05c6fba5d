package keychain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func BenchmarkDerive(t *testing.B) {
	k, err := New(testSeed, []Namespace{{
		Curve: CurveSecp256k1,
		Path:  Path{HardenedKeyStart | 44, HardenedKeyStart | 1},
	}})
	require.NoError(t, err, "unable to create keychain")
	defer k.Zero()

	path := Path{
		HardenedKeyStart | 44, HardenedKeyStart | 1, HardenedKeyStart,
		0, 1,
	}

	var node HDNode

	t.ReportAllocs()
	t.ResetTimer()

	for i := 0; i < t.N; i++ {
		node, err = k.Derive(path, CurveSecp256k1)
		if err == nil {
			node.Zero()
		}
	}
	require.NoError(t, err)
	require.NotNil(t, node)
}
