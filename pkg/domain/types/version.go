package types

// Version is overridden at build time with -ldflags "-X".
var Version = "dev"

// ServiceName is used as the submitting tool name in job tags and health responses.
const ServiceName = "giteart"
