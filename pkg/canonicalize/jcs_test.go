package canonicalize

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJCS_KeysSortedAndStable(t *testing.T) {
	a := map[string]interface{}{"b": 1, "a": 2, "c": map[string]interface{}{"z": 1, "y": 2}}
	out, err := JCSString(a)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1,"c":{"y":2,"z":1}}`, out)
}

func TestJCS_NonASCIIEscaped(t *testing.T) {
	out, err := JCSString(map[string]interface{}{"name": "café"})
	require.NoError(t, err)
	assert.Equal(t, "{\"name\":\"caf\\u00e9\"}", out)
}

func TestJCS_DifferentObjectIdentitySameHash(t *testing.T) {
	type manifest struct {
		IntendedPurpose string   `json:"intended_purpose"`
		Tags            []string `json:"tags"`
	}
	m1 := manifest{IntendedPurpose: "risk scoring", Tags: []string{"b", "a"}}
	m2 := manifest{IntendedPurpose: "risk scoring", Tags: []string{"b", "a"}}

	h1, err := Hash(m1)
	require.NoError(t, err)
	h2, err := Hash(m2)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)

	m2.IntendedPurpose = "risk scoring!"
	h3, err := Hash(m2)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

// TestJCS_PropertyDeterministic asserts the testable property from spec §8:
// two manifests with identical content but different object identities
// produce byte-equal canonical JSON, for arbitrary string-keyed maps.
func TestJCS_PropertyDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("equal maps canonicalize identically", prop.ForAll(
		func(m map[string]string) bool {
			a := make(map[string]interface{}, len(m))
			b := make(map[string]interface{}, len(m))
			for k, v := range m {
				a[k] = v
				b[k] = v
			}
			ha, err := Hash(a)
			if err != nil {
				return false
			}
			hb, err := Hash(b)
			if err != nil {
				return false
			}
			return ha == hb
		},
		gen.MapOf(gen.AlphaString(), gen.AlphaString()),
	))

	properties.TestingRun(t)
}
