// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package version provides the version and build information.
package version

import (
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
)

// Info is the version and build information of the current binary.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Commit  string `json:"commit"`   // BuildInfo's vcs.revision
	BuiltAt string `json:"built_at"` // BuildInfo's vcs.date
	Go      string `json:"go"`       // runtime.Version()
	OS      string `json:"os"`       // runtime.GOOS
	Arch    string `json:"arch"`     // runtime.GOARCH
}

// String implements the fmt.Stringer interface.
func (i Info) String() string {
	var sb strings.Builder
	sb.WriteString(i.Name + " " + i.Version + " (" + i.Go + ", " + i.OS + "/" + i.Arch + ")" + "\n")
	if i.Commit != "" && i.BuiltAt != "" {
		sb.WriteString("commit " + i.Commit + "\n")
		sb.WriteString("built at " + i.BuiltAt + "\n")
	}
	return sb.String()
}

var infoLazy = sync.OnceValue(func() Info {
	i := Info{
		Name: "rsssub",
		Go:   runtime.Version(),
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}

	if exe, err := os.Executable(); err == nil {
		i.Name = filepath.Base(exe)
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return i
	}
	i.Version = bi.Main.Version
	if i.Version == "(devel)" {
		i.Version = "devel"
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			i.Commit = s.Value
		case "vcs.date":
			i.BuiltAt = s.Value
		}
	}
	return i
})

// CmdName returns the base name of the current binary.
func CmdName() string { return infoLazy().Name }

// Version returns the version and build information of the current binary.
func Version() Info { return infoLazy() }

// UserAgent returns the User-Agent string sent with outgoing HTTP requests.
func UserAgent() string {
	i := infoLazy()
	ver := i.Version
	if i.Version == "devel" && i.Commit != "" {
		ver = i.Commit
	}
	if ver == "" {
		ver = "devel"
	}
	return i.Name + "/" + ver + " (+https://github.com/penggan00/rss-sub000)"
}
