package specs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestPortSpec_UnmarshalYAML(t *testing.T) {
	type holder struct {
		Port PortSpec `yaml:"port"`
	}

	cases := []struct {
		name    string
		yaml    string
		want    PortSpec
		wantErr string
	}{
		{name: "integer", yaml: "port: 3000", want: PortSpec{Value: 3000}},
		{name: "auto", yaml: `port: auto`, want: PortSpec{Auto: true}},
		{name: "quoted integer", yaml: `port: "8080"`, want: PortSpec{Value: 8080}},
		{name: "absent", yaml: "{}", want: PortSpec{}},
		{name: "null", yaml: "port: null", want: PortSpec{}},
		{name: "zero", yaml: "port: 0", wantErr: "out of range"},
		{name: "too large", yaml: "port: 70000", wantErr: "out of range"},
		{name: "junk string", yaml: "port: whenever", wantErr: `integer or "auto"`},
		{name: "wrong type", yaml: "port: [1, 2]", wantErr: `integer or "auto"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var h holder
			err := yaml.Unmarshal([]byte(tc.yaml), &h)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, h.Port)
		})
	}
}

func TestPortSpec_UnmarshalJSON(t *testing.T) {
	type holder struct {
		Port PortSpec `json:"port"`
	}

	var h holder
	require.NoError(t, json.Unmarshal([]byte(`{"port": 4000}`), &h))
	require.Equal(t, PortSpec{Value: 4000}, h.Port)

	require.NoError(t, json.Unmarshal([]byte(`{"port": "auto"}`), &h))
	require.Equal(t, PortSpec{Auto: true}, h.Port)

	require.NoError(t, json.Unmarshal([]byte(`{"port": null}`), &h))
	require.Equal(t, PortSpec{}, h.Port)

	require.Error(t, json.Unmarshal([]byte(`{"port": true}`), &h))
}

func TestPortSpec_MarshalRoundTrip(t *testing.T) {
	for _, p := range []PortSpec{{Value: 3000}, {Auto: true}} {
		b, err := json.Marshal(p)
		require.NoError(t, err)
		var got PortSpec
		require.NoError(t, json.Unmarshal(b, &got))
		require.Equal(t, p, got)
	}

	b, err := json.Marshal(PortSpec{})
	require.NoError(t, err)
	require.Equal(t, "null", string(b))
}

func TestPortSpec_Predicates(t *testing.T) {
	require.True(t, PortSpec{Value: 80}.Fixed())
	require.False(t, PortSpec{Auto: true}.Fixed())
	require.True(t, PortSpec{}.None())
	require.False(t, PortSpec{Auto: true}.None())

	require.Equal(t, "auto", PortSpec{Auto: true}.String())
	require.Equal(t, "3000", PortSpec{Value: 3000}.String())
	require.Equal(t, "none", PortSpec{}.String())
}
