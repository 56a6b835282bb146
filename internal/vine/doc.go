// Package vine builds the TaskVine worker factory command for a session from
// CLI options and the vine_factory_config table of compute.yml, and surfaces
// error lines from the running factory's log.
package vine
