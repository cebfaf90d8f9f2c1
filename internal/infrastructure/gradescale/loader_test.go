package gradescale

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymstats/gymstats-hub/internal/domain/grade"
	"github.com/gymstats/gymstats-hub/internal/domain/shared"
)

func TestDefaultsMatchBuiltInTable(t *testing.T) {
	f := Defaults()
	assert.Equal(t, grade.DefaultScales(), f.Scales)
	assert.Equal(t, grade.DefaultBrands(), f.Brands)

	r, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, grade.NewDefaultRegistry().Keys(), r.Keys())
	assert.Equal(t, "cd", r.ScaleFor("cd1", "Climbing District", false).Key())
}

func TestLoad_OverrideMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scales.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scales:
  cd: [yellow, green, blue, red, black]
  ab: [easy, medium, hard]
brands:
  Arkose Boulders: ab
`), 0o600))

	r, err := Load(path)
	require.NoError(t, err)

	cd, ok := r.Lookup("cd")
	require.True(t, ok)
	assert.Equal(t, 5, cd.Len())

	ab := r.ScaleFor("ak1", "Arkose Boulders", false)
	assert.Equal(t, []string{"easy", "medium", "hard"}, ab.Canonical())

	bo, ok := r.Lookup("bo")
	require.True(t, ok, "untouched defaults are kept")
	assert.Equal(t, 14, bo.Len())
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
		return p
	}

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(write("typo.yaml", "scale:\n  cd: [a, b]\n"))
	assert.Error(t, err, "unknown top-level field")

	_, err = Load(write("dup.yaml", "scales:\n  xx: [red, Red]\n"))
	assert.ErrorIs(t, err, shared.ErrDuplicateLabel)

	_, err = Load(write("brand.yaml", "brands:\n  Nowhere: zz\n"))
	assert.True(t, shared.IsNotFound(err))
}

func TestParse_Empty(t *testing.T) {
	f, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, f.Scales)
	merged := Defaults().Merge(f)
	assert.Equal(t, grade.DefaultScales(), merged.Scales)
}
