package common

// PackageName is the metrics namespace and default service tag.
const PackageName = "record_custody_backend"

// Version is set at build time via -ldflags.
var Version = "dev"
