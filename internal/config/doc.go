// Package config defines the format-agnostic configuration model for the
// application, along with the Loader interface for reading it from a concrete
// format.
//
// The Model is the single source of truth for the app package. The HCL
// implementation lives in the hcl_adapter package.
package config
