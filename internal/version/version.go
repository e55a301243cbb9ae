// Package version reports the gateway's name and version.
package version

import (
	"runtime/debug"

	goversion "github.com/hashicorp/go-version"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Name is the server name reported in logs and by GET /version.
const Name = "stdio-gateway"

// Unknown is reported when no version information is available.
const Unknown = "unknown"

// Version is set at build time:
//
//	go build -ldflags "-X github.com/wagiedev/stdio-gateway/internal/version.Version=1.2.3"
var Version = ""

// String returns the gateway version, or Unknown.
func String() string {
	info, ok := debug.ReadBuildInfo()

	return resolve(Version, info, ok)
}

// Implementation returns the gateway identity.
func Implementation() *mcp.Implementation {
	return &mcp.Implementation{Name: Name, Version: String()}
}

// resolve prefers the linker-provided version, then the main module version
// recorded by the go command. Values that are not semantic versions are
// rejected.
func resolve(linked string, info *debug.BuildInfo, ok bool) string {
	candidate := linked

	if candidate == "" && ok && info != nil {
		candidate = info.Main.Version
	}

	if candidate == "" || candidate == "(devel)" {
		return Unknown
	}

	v, err := goversion.NewVersion(candidate)
	if err != nil {
		return Unknown
	}

	return v.String()
}
