// Package config defines the format-agnostic settings of the application,
// along with the Loader interface that concrete formats implement.
//
// Settings are the single source of truth for the twins client, the
// console, the purge and the functions host. The HCL implementation lives in
// internal/hclconfig.
package config
