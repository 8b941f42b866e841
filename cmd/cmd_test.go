package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/deploymenttheory/go-cryptodisk/internal/testutil"
	"github.com/deploymenttheory/go-cryptodisk/internal/types"
	"github.com/deploymenttheory/go-cryptodisk/pkg/app/mount"
	"github.com/deploymenttheory/go-cryptodisk/pkg/app/probe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args, feeding stdin to the passphrase prompt
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LOG_LEVEL", "")
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	input := filepath.Join(t.TempDir(), "stdin")
	require.NoError(t, os.WriteFile(input, []byte(stdin), 0o600))
	file, err := os.Open(input)
	require.NoError(t, err)
	defer file.Close()

	savedStdin := os.Stdin
	os.Stdin = file
	defer func() { os.Stdin = savedStdin }()

	// Reset global and per-command flag state left by earlier runs
	verbose, quiet, outputFormat, configFile, extraDisks = false, false, "table", "", nil
	luksFlags, geliFlags = mountFlags{}, mountFlags{}

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err = rootCmd.Execute()
	return stdout.String(), err
}

func writeLUKSImage(t *testing.T) (string, []byte) {
	t.Helper()
	payload := testutil.DeterministicBytes("cmd payload", 8*512)
	img, err := testutil.BuildLUKS(testutil.LUKSOptions{
		Slots:   []testutil.LUKSSlot{{Index: 0, Passphrase: "secret", Iterations: 2, Stripes: 4}},
		Payload: payload,
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "luks.img")
	require.NoError(t, os.WriteFile(path, img.Data, 0o600))
	return path, payload
}

func TestLUKSMountCommand(t *testing.T) {
	path, payload := writeLUKSImage(t)
	out := filepath.Join(t.TempDir(), "dump.bin")

	stdout, err := execute(t, "secret\n", "luksmount", path, "-o", "json", "--dump-sector", "1", "--dump-count", "3", "--out", out)
	require.NoError(t, err)

	var response mount.Response
	require.NoError(t, json.Unmarshal([]byte(stdout), &response))
	require.Len(t, response.Devices, 1)
	assert.Equal(t, "crypto0", response.Devices[0].Name)
	assert.Equal(t, path, response.Devices[0].Source)

	dumped, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, payload[512:4*512], dumped)
}

func TestLUKSMountWrongPassphrase(t *testing.T) {
	path, _ := writeLUKSImage(t)

	_, err := execute(t, "nope\n", "luksmount", path)
	assert.ErrorIs(t, err, types.ErrAccessDenied)
}

func TestMountRejectsBadTargets(t *testing.T) {
	_, err := execute(t, "", "luksmount")
	assert.Error(t, err)

	_, err = execute(t, "", "gelimount", "-a", "-u", "abcd")
	assert.Error(t, err)

	_, err = execute(t, "", "luksmount", "a.img", "--dump-count", "2")
	assert.Error(t, err)
}

func TestProbeAndListCommands(t *testing.T) {
	path, _ := writeLUKSImage(t)

	stdout, err := execute(t, "", "probe", path, "-o", "json")
	require.NoError(t, err)
	var response probe.Response
	require.NoError(t, json.Unmarshal([]byte(stdout), &response))
	require.Len(t, response.Results, 1)
	require.Len(t, response.Results[0].Containers, 1)
	assert.Equal(t, types.FormatLUKS, response.Results[0].Containers[0].Format)

	stdout, err = execute(t, "", "list", "--disk", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, path)
	assert.Contains(t, stdout, "luks")

	stdout, err = execute(t, "", "list")
	require.NoError(t, err)
	assert.Empty(t, stdout)
}
