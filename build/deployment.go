package build

// DeploymentType selects how package loggers behave before the command wires
// them to its handlers.
type DeploymentType byte

const (
	// Development builds log package output to stderr even when no root
	// logger was wired, so unit tests can be made verbose.
	Development DeploymentType = iota

	// Production builds keep package loggers disabled until wired.
	Production
)

// String returns the name of the deployment.
func (b DeploymentType) String() string {
	switch b {
	case Development:
		return "development"
	case Production:
		return "production"
	default:
		return "unknown"
	}
}

// IsDevBuild returns true if the binary was built with the dev tag.
func IsDevBuild() bool {
	return Deployment == Development
}
