package target

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seeed-sh/seeed/core/errors"
	"github.com/seeed-sh/seeed/core/value"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  Spec
	}{
		{"root@example.com", Spec{User: "root", Host: "example.com", Port: 22}},
		{"deploy@10.0.0.5:2222", Spec{User: "deploy", Host: "10.0.0.5", Port: 2222}},
		{"  admin@host  ", Spec{User: "admin", Host: "host", Port: 22}},
		{"root@[::1]:2200", Spec{User: "root", Host: "::1", Port: 2200}},
		{"root@[fe80::1]", Spec{User: "root", Host: "fe80::1", Port: 22}},
		{"root@::1", Spec{User: "root", Host: "::1", Port: 22}},
		{"ci-bot@build.internal:65535", Spec{User: "ci-bot", Host: "build.internal", Port: 65535}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseInvalid(t *testing.T) {
	inputs := []string{
		"",
		"example.com",
		"@example.com",
		"root@",
		"root@host:",
		"root@host:ssh",
		"root@host:0",
		"root@host:70000",
		"a@b@host",
		"root@bad host",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.KindTargetResolution), "got %v", err)
		})
	}
}

func TestSpecRendering(t *testing.T) {
	assert.Equal(t, "root@example.com:22", Spec{User: "root", Host: "example.com", Port: 22}.String())
	assert.Equal(t, "[::1]:2222", Spec{User: "root", Host: "::1", Port: 2222}.Addr())
}

func TestResolveCLIWins(t *testing.T) {
	cli := &Spec{User: "cli", Host: "from-flag", Port: 22}

	got, err := Resolve(cli, value.String("script@from-script"), true, 9)
	require.NoError(t, err)
	assert.Equal(t, *cli, got)
}

func TestResolveFromScript(t *testing.T) {
	got, err := Resolve(nil, value.String("deploy@web1:2022"), true, 3)
	require.NoError(t, err)
	assert.Equal(t, Spec{User: "deploy", Host: "web1", Port: 2022}, got)
}

func TestResolveFailures(t *testing.T) {
	tests := []struct {
		name    string
		script  value.Value
		present bool
	}{
		{"no target anywhere", nil, false},
		{"array target", value.ArrayOf("a@b", "c@d"), true},
		{"malformed target", value.String("not-a-target"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(nil, tt.script, tt.present, 14)
			require.Error(t, err)

			e := err.(*errors.Error)
			assert.Equal(t, errors.KindTargetResolution, e.Kind)
			assert.Equal(t, 14, e.Line)
		})
	}
}

// Rendering a spec and parsing it back yields the same spec.
func TestPropertyParseRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("Parse(spec.String()) == spec", prop.ForAll(
		func(user, host string, port int) bool {
			spec := Spec{User: user, Host: host, Port: port}
			got, err := Parse(spec.String())
			return err == nil && got == spec
		},
		gen.Identifier(),
		gen.Identifier(),
		gen.IntRange(1, 65535),
	))

	properties.Property("omitted port defaults to 22", prop.ForAll(
		func(user, host string) bool {
			got, err := Parse(fmt.Sprintf("%s@%s", user, host))
			return err == nil && got.Port == DefaultPort
		},
		gen.Identifier(),
		gen.Identifier(),
	))

	properties.TestingRun(t)
}
