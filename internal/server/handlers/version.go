package handlers

import (
	"net/http"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"

	"github.com/botwire/botwire/internal/appid"
	"github.com/botwire/botwire/internal/core"
)

// BuildInfo is stamped by main at startup.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	BuildDate string `json:"build_date"`
}

var (
	build       = BuildInfo{Version: "dev", Commit: "unknown", BuildDate: "unknown"}
	appIdentity = appid.Get()
)

// SetVersionInfo records the build stamp reported by /version.
func SetVersionInfo(version, commit, buildDate string) {
	build = BuildInfo{Version: version, Commit: commit, BuildDate: buildDate}
}

// CurrentBuild returns the stamp set by SetVersionInfo.
func CurrentBuild() BuildInfo { return build }

// SetAppIdentity overrides the reported app identity.
func SetAppIdentity(identity appid.Identity) {
	appIdentity = identity
}

// VersionResponse is the /version body.
type VersionResponse struct {
	App          AppInfo           `json:"app"`
	API          APIInfo           `json:"api"`
	Dependencies map[string]string `json:"dependencies"`
	Runtime      RuntimeInfo       `json:"runtime"`
}

type AppInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	BuildInfo
}

// APIInfo tells clients where the bot API lives and which streams it serves.
type APIInfo struct {
	BasePath string              `json:"base_path"`
	Streams  []core.ResourceKind `json:"streams"`
}

type RuntimeInfo struct {
	Go            string `json:"go"`
	Platform      string `json:"platform"`
	NumCPU        int    `json:"num_cpu"`
	NumGoroutines int    `json:"num_goroutines"`
}

// VersionHandler reports build, API and runtime details.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	deps := crucible.GetVersion()

	resp := VersionResponse{
		App: AppInfo{
			Name:        appIdentity.BinaryName,
			Description: appIdentity.Description,
			BuildInfo:   build,
		},
		API: APIInfo{
			BasePath: "/api/v1",
			Streams:  []core.ResourceKind{core.ResourceFeed, core.ResourceDM, core.ResourceRoom},
		},
		Dependencies: map[string]string{
			"gofulmen": deps.Gofulmen,
			"crucible": deps.Crucible,
		},
		Runtime: RuntimeInfo{
			Go:            runtime.Version(),
			Platform:      runtime.GOOS + "/" + runtime.GOARCH,
			NumCPU:        runtime.NumCPU(),
			NumGoroutines: runtime.NumGoroutine(),
		},
	}

	writeJSON(w, http.StatusOK, resp)
}
