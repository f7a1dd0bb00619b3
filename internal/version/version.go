package version

// VERSION and Commit are set at build time via:
//
//	go build -ldflags "-X .../internal/version.VERSION=0.1.0 -X .../internal/version.Commit=abc123"
var (
	VERSION = "dev"
	Commit  = "dev"
)
