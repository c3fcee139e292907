// Package version reports what build of the deployer is running.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

var (
	version      = ""                     // Injected with a linker flag
	buildDate    = "1970-01-01T00:00:00Z" // Injected with a linker flag
	gitCommit    = ""                     // Injected with a linker flag
	gitTreeState = ""                     // Injected with a linker flag
)

// Version describes the source code and the build of the running binary.
type Version struct {
	Version string `json:"version"`
	// BuildDate is when the binary was built. It is the zero time when
	// unknown.
	BuildDate time.Time `json:"buildDate"`
	// GitCommit is the commit the binary was built from.
	GitCommit string `json:"gitCommit"`
	// GitTreeDirty is true if the working tree had uncommitted changes at
	// build time.
	GitTreeDirty bool   `json:"gitTreeDirty"`
	GoVersion    string `json:"goVersion"`
	Compiler     string `json:"compiler"`
	Platform     string `json:"platform"`
}

var ver Version

func init() {
	info, _ := debug.ReadBuildInfo()
	ver = newVersion(version, buildDate, gitCommit, gitTreeState, info)
}

// newVersion assembles a Version from linker-injected values, falling back to
// the VCS stamps Go records in the build info when a value wasn't injected.
func newVersion(
	versionStr string,
	buildDateStr string,
	commit string,
	treeState string,
	info *debug.BuildInfo,
) Version {
	v := Version{
		Version:   versionStr,
		GitCommit: commit,
		GoVersion: runtime.Version(),
		Compiler:  runtime.Compiler,
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
	if t, err := time.Parse(time.RFC3339, buildDateStr); err == nil && !t.Equal(time.Unix(0, 0)) {
		v.BuildDate = t.UTC()
	}
	v.GitTreeDirty = treeState != "clean"

	if commit == "" && info != nil {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				v.GitCommit = setting.Value
			case "vcs.modified":
				v.GitTreeDirty = setting.Value == "true"
			case "vcs.time":
				if v.BuildDate.IsZero() {
					if t, err := time.Parse(time.RFC3339, setting.Value); err == nil {
						v.BuildDate = t.UTC()
					}
				}
			}
		}
	}

	if v.Version != "" && v.GitCommit != "" && !v.GitTreeDirty {
		return v
	}
	v.Version = "devel"
	if len(v.GitCommit) >= 7 {
		v.Version += "+" + v.GitCommit[:7]
	} else {
		v.Version += "+unknown"
	}
	if v.GitTreeDirty {
		v.Version += ".dirty"
	}
	return v
}

// GetVersion returns the Version of the running binary.
func GetVersion() Version {
	return ver
}
