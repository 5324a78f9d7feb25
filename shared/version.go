package shared

// Version is reported in log fields and the CLI banner.
const Version = "0.3.0"
