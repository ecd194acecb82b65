package common

// PackageName identifies the service in logs and metrics.
const PackageName = "chat-gateway"

// Version is the service version, overridable at build time with
// -ldflags "-X github.com/ruteri/confidential-chat-gateway/common.Version=...".
var Version = "dev"
