package provision

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tflpi/tflpi-setup/internal/cmdrun"
	"github.com/tflpi/tflpi-setup/internal/setupcfg"
)

const unitTemplate = `[Unit]
Description=TfL Pi e-paper departure display

[Service]
User={{USER}}
WorkingDirectory={{WORKING_DIR}}
ExecStart={{WORKING_DIR}}/venv/bin/python3 main.py

[Install]
WantedBy=multi-user.target
`

// testState builds a State rooted in a temp directory with every fixed system
// path redirected into it.
func testState(t *testing.T, rec *cmdrun.Recorder) *State {
	t.Helper()
	dir := t.TempDir()

	cfg := setupcfg.Default()
	cfg.ModelPath = filepath.Join(dir, "model")
	cfg.BootConfigPath = filepath.Join(dir, "boot-config.txt")

	return &State{
		User:    "pi",
		WorkDir: dir,
		Config:  cfg,
		Runner:  rec,
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// satisfyAll creates every artifact the gated stages look for, so a pipeline
// run performs only the ungated package and pip stages.
func satisfyAll(t *testing.T, st *State) {
	t.Helper()
	writeFile(t, st.Config.ModelPath, "Raspberry Pi 4 Model B Rev 1.1\x00")
	writeFile(t, st.Config.BootConfigPath, "arm_64bit=1\ndtparam=spi=on\n")
	require.NoError(t, os.MkdirAll(st.Path(st.Config.VenvDir), 0755))
	require.NoError(t, os.MkdirAll(st.Path(st.Config.Driver.TargetDir), 0755))
	writeFile(t, st.Path(st.Config.ConfigFile), `{"tfl_api_key": "secret"}`)
	writeFile(t, st.Path(st.Config.RequirementsFile), "Pillow\n")
	writeFile(t, st.Path(st.Config.UnitTemplate), unitTemplate)
}

func TestInstallPackagesAsRoot(t *testing.T) {
	rec := &cmdrun.Recorder{}
	st := testState(t, rec)
	st.Config.Packages = []string{"python3", "git"}

	require.NoError(t, installPackages(st))
	assert.Equal(t, []string{
		"apt-get update",
		"apt-get install -y python3 git",
	}, rec.CallLines())
}

func TestInstallPackagesUnderSudo(t *testing.T) {
	rec := &cmdrun.Recorder{}
	st := testState(t, rec)
	st.Sudo = true
	st.Config.Packages = []string{"python3"}

	require.NoError(t, installPackages(st))
	assert.Equal(t, []string{
		"sudo apt-get update",
		"sudo apt-get install -y python3",
	}, rec.CallLines())
}

func TestSecondRunPerformsNoGatedEffects(t *testing.T) {
	rec := &cmdrun.Recorder{}
	st := testState(t, rec)
	satisfyAll(t, st)

	// backdate the gated artifacts so any rewrite would move their mtime
	old := time.Now().Add(-time.Hour)
	gated := []string{
		st.Path(st.Config.VenvDir),
		st.Path(st.Config.Driver.TargetDir),
		st.Path(st.Config.ConfigFile),
	}
	for _, p := range gated {
		require.NoError(t, os.Chtimes(p, old, old))
	}

	require.NoError(t, NewPipeline(Steps()).Run(st))
	require.NoError(t, NewPipeline(Steps()).Run(st))

	// only the ungated package/pip stages touched the runner, twice each
	assert.Equal(t, 4, rec.InvocationCount("apt-get"))
	assert.Equal(t, 2, rec.InvocationCount(filepath.Join(st.Path(st.Config.VenvDir), "bin", "pip")))
	assert.False(t, rec.Invoked("git"))
	assert.False(t, rec.Invoked("raspi-config"))

	for _, p := range gated {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.True(t, info.ModTime().Equal(old), "%s was modified by a repeat run", p)
	}
}

func TestExistingConfigIsNeverOverwritten(t *testing.T) {
	rec := &cmdrun.Recorder{}
	st := testState(t, rec)
	satisfyAll(t, st)
	writeFile(t, st.Path(st.Config.ConfigExample), `{"tfl_api_key": "YOUR_TFL_API_KEY"}`)

	require.NoError(t, NewPipeline(Steps()).Run(st))

	data, err := os.ReadFile(st.Path(st.Config.ConfigFile))
	require.NoError(t, err)
	assert.Equal(t, `{"tfl_api_key": "secret"}`, string(data))
}

func TestConfigMaterializedFromExample(t *testing.T) {
	rec := &cmdrun.Recorder{}
	st := testState(t, rec)
	writeFile(t, st.Path(st.Config.ConfigExample), `{"tfl_api_key": "YOUR_TFL_API_KEY"}`)

	require.NoError(t, materializeConfig(st))

	data, err := os.ReadFile(st.Path(st.Config.ConfigFile))
	require.NoError(t, err)
	assert.Equal(t, `{"tfl_api_key": "YOUR_TFL_API_KEY"}`, string(data))
}

func TestConfigMaterializationRequiresExample(t *testing.T) {
	rec := &cmdrun.Recorder{}
	st := testState(t, rec)

	err := materializeConfig(st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), st.Config.ConfigExample)
}

func TestPackageFailureAbortsPipeline(t *testing.T) {
	rec := &cmdrun.Recorder{
		FailWith: map[string]error{"apt-get": fmt.Errorf("exit status 100")},
	}
	st := testState(t, rec)
	writeFile(t, st.Path(st.Config.UnitTemplate), unitTemplate)

	err := NewPipeline(Steps()).Run(st)
	require.Error(t, err)

	assert.False(t, rec.Invoked("python3"), "venv stage ran after package failure")
	assert.False(t, rec.Invoked("git"), "driver stage ran after package failure")
	assert.False(t, rec.Invoked("raspi-config"), "SPI stage ran after package failure")
	assert.NoFileExists(t, st.Path(st.Config.UnitFile))
}

func TestSPIAlreadyEnabled(t *testing.T) {
	rec := &cmdrun.Recorder{}
	st := testState(t, rec)
	writeFile(t, st.Config.BootConfigPath, "dtparam=audio=on\n dtparam=spi=on \n")

	satisfied, err := spiEnabled(st)
	require.NoError(t, err)
	assert.True(t, satisfied)
}

func TestSPICommentedOutDoesNotCount(t *testing.T) {
	rec := &cmdrun.Recorder{}
	st := testState(t, rec)
	writeFile(t, st.Config.BootConfigPath, "#dtparam=spi=on\n")

	satisfied, err := spiEnabled(st)
	require.NoError(t, err)
	assert.False(t, satisfied)
}

func TestSPIMissingBootConfigCountsAsDisabled(t *testing.T) {
	rec := &cmdrun.Recorder{}
	st := testState(t, rec)

	satisfied, err := spiEnabled(st)
	require.NoError(t, err)
	assert.False(t, satisfied)
}

func TestEnableSPIInvokedExactlyOnceWhenAbsent(t *testing.T) {
	rec := &cmdrun.Recorder{}
	st := testState(t, rec)
	satisfyAll(t, st)
	writeFile(t, st.Config.BootConfigPath, "arm_64bit=1\n")

	require.NoError(t, NewPipeline(Steps()).Run(st))

	assert.Equal(t, 1, rec.InvocationCount("raspi-config"))
	assert.True(t, st.RebootNeeded)
}

func TestEnableSPINotInvokedWhenPresent(t *testing.T) {
	rec := &cmdrun.Recorder{}
	st := testState(t, rec)
	satisfyAll(t, st)

	require.NoError(t, NewPipeline(Steps()).Run(st))

	assert.False(t, rec.Invoked("raspi-config"))
	assert.False(t, st.RebootNeeded)
}

func TestEnableSPIUsesSudo(t *testing.T) {
	rec := &cmdrun.Recorder{}
	st := testState(t, rec)
	st.Sudo = true

	require.NoError(t, enableSPI(st))
	assert.Equal(t, []string{"sudo raspi-config nonint do_spi 0"}, rec.CallLines())
}

func TestDriverFetchPromotesSubdirAndCleansUp(t *testing.T) {
	var clonedTo string
	rec := &cmdrun.Recorder{}
	rec.Handler = func(name string, args []string) error {
		if name != "git" {
			return nil
		}
		// simulate the clone by materializing the vendor tree layout
		clonedTo = args[len(args)-1]
		pkg := filepath.Join(clonedTo, "RaspberryPi_JetsonNano", "python", "lib", "waveshare_epd")
		if err := os.MkdirAll(pkg, 0755); err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(pkg, "epd7in5_V2.py"), []byte("# driver\n"), 0644)
	}

	st := testState(t, rec)
	require.NoError(t, fetchDriver(st))

	assert.FileExists(t, filepath.Join(st.Path(st.Config.Driver.TargetDir), "epd7in5_V2.py"))
	require.NotEmpty(t, clonedTo)
	assert.NoDirExists(t, clonedTo, "temporary clone left behind")

	require.Len(t, rec.Calls, 1)
	assert.Equal(t, "git", rec.Calls[0].Name)
	assert.Equal(t, []string{"clone", "--depth", "1", st.Config.Driver.Repo, clonedTo}, rec.Calls[0].Args)
}

func TestDriverFetchCloneFailureCleansUp(t *testing.T) {
	rec := &cmdrun.Recorder{
		FailWith: map[string]error{"git": fmt.Errorf("exit status 128")},
	}
	st := testState(t, rec)

	err := fetchDriver(st)
	require.Error(t, err)

	require.Len(t, rec.Calls, 1)
	tmp := rec.Calls[0].Args[len(rec.Calls[0].Args)-1]
	assert.NoDirExists(t, tmp, "temporary clone left behind after failed fetch")
	assert.NoDirExists(t, st.Path(st.Config.Driver.TargetDir))
}

func TestDriverFetchRejectsCloneWithoutSubdir(t *testing.T) {
	var clonedTo string
	rec := &cmdrun.Recorder{}
	rec.Handler = func(name string, args []string) error {
		clonedTo = args[len(args)-1]
		return os.MkdirAll(clonedTo, 0755)
	}

	st := testState(t, rec)
	err := fetchDriver(st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), st.Config.Driver.Subdir)
	assert.NoDirExists(t, clonedTo)
}

func TestProbeFillsModel(t *testing.T) {
	rec := &cmdrun.Recorder{}
	st := testState(t, rec)
	writeFile(t, st.Config.ModelPath, "Raspberry Pi Zero 2 W Rev 1.0\x00")

	require.NoError(t, probePlatform(st))
	assert.Equal(t, "Raspberry Pi Zero 2 W Rev 1.0", st.Model)
}

func TestProbeNeverFailsPipeline(t *testing.T) {
	rec := &cmdrun.Recorder{}
	st := testState(t, rec)

	// descriptor missing entirely
	require.NoError(t, probePlatform(st))
	assert.Empty(t, st.Model)
}

// captureStdout collects everything fn prints to stdout.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = old }()

	fn()

	require.NoError(t, w.Close())
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

func TestDryRunPrintsCommandLines(t *testing.T) {
	rec := &cmdrun.Recorder{}
	st := testState(t, rec)
	st.DryRun = true
	st.Sudo = true

	out := captureStdout(t, func() {
		require.NoError(t, NewPipeline(Steps()).Run(st))
	})

	assert.Contains(t, out, "sudo apt-get update")
	assert.Contains(t, out, "sudo apt-get install -y python3 python3-pip python3-venv git libopenjp2-7 libtiff6")
	assert.Contains(t, out, "python3 -m venv "+st.Path(st.Config.VenvDir))
	assert.Contains(t, out, filepath.Join(st.Path(st.Config.VenvDir), "bin", "pip")+" install -r "+st.Path(st.Config.RequirementsFile))
	assert.Contains(t, out, "git clone --depth 1 "+st.Config.Driver.Repo)
	assert.Contains(t, out, "sudo raspi-config nonint do_spi 0")

	assert.Empty(t, rec.Calls, "dry run must not execute anything")
}

func TestDryRunPerformsNothing(t *testing.T) {
	rec := &cmdrun.Recorder{}
	st := testState(t, rec)
	st.DryRun = true

	require.NoError(t, NewPipeline(Steps()).Run(st))

	assert.Empty(t, rec.Calls)
	assert.NoDirExists(t, st.Path(st.Config.VenvDir))
	assert.NoFileExists(t, st.Path(st.Config.ConfigFile))
	assert.NoFileExists(t, st.Path(st.Config.UnitFile))
}

func TestUnitRegeneratedEveryRun(t *testing.T) {
	rec := &cmdrun.Recorder{}
	st := testState(t, rec)
	writeFile(t, st.Path(st.Config.UnitTemplate), unitTemplate)

	require.NoError(t, generateUnit(st))

	st.User = "deploy"
	require.NoError(t, generateUnit(st))

	data, err := os.ReadFile(st.Path(st.Config.UnitFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "User=deploy")
	assert.Contains(t, string(data), "WorkingDirectory="+st.WorkDir)
}
