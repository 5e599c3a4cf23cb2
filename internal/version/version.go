// internal/version/version.go
package version

// Version is the walign release version. Overridable at build time:
// -ldflags "-X walign/internal/version.Version=v1.2.3".
var Version = "0.1.0"
