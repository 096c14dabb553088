package version

// Version is the current version of immo-etl.
// Can be overridden at build time with -ldflags "-X ...version.Version=..."
var Version = "1.4.0"

// Name is the application name.
const Name = "immo-etl"

// Description is a short description of the application.
const Description = "Extract, normalize and load the fixed-asset depreciation open dataset"
