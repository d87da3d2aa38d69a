package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKinds(t *testing.T) {
	assert.Equal(t, KindString, String("x").Kind())
	assert.Equal(t, KindArray, ArrayOf("a").Kind())
	assert.Equal(t, "string", KindString.String())
	assert.Equal(t, "array", KindArray.String())
	assert.Equal(t, "unknown", Kind(42).String())
}

func TestArrayStrings(t *testing.T) {
	assert.Equal(t, []string{"nginx", "git"}, ArrayOf("nginx", "git").Strings())
	assert.Empty(t, ArrayOf().Strings())
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, `"hello"`, Describe(String("hello")))
	assert.Equal(t, `["a", "b"]`, Describe(ArrayOf("a", "b")))
	assert.Equal(t, `[]`, Describe(ArrayOf()))
	assert.Equal(t, "<nil>", Describe(nil))
}
