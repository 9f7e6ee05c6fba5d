package build

import "fmt"

const (
	// AppName is the name of the command.
	AppName = "lqkeys"

	AppMajor uint = 0
	AppMinor uint = 3
	AppPatch uint = 0
)

// Commit is set at link time with -ldflags "-X".
var Commit string

// Version returns the semantic version of the build, with the commit it was
// built from if known.
func Version() string {
	version := fmt.Sprintf("%d.%d.%d", AppMajor, AppMinor, AppPatch)
	if Commit != "" {
		version += "-" + Commit
	}

	return version
}

// UserAgent returns the application name and version, with the deployment
// appended for development builds.
func UserAgent() string {
	agent := AppName + "/" + Version()
	if IsDevBuild() {
		agent += " (" + Deployment.String() + ")"
	}

	return agent
}
