package version

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString_ContainsBuildFields(t *testing.T) {
	s := String()
	assert.True(t, strings.HasPrefix(s, "cividex "))
	assert.Contains(t, s, Version)
	assert.Contains(t, s, Commit)
	assert.Contains(t, s, GoVersion)
}

func TestShort_ReturnsVersionOnly(t *testing.T) {
	assert.Equal(t, Version, Short())
}

func TestGetInfo_PopulatesPlatform(t *testing.T) {
	info := GetInfo()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, runtime.GOARCH, info.Arch)
	assert.NotEmpty(t, info.GoVersion)
}
