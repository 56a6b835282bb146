package session

// Environment is what the environment provisioner hands to a session: an
// extracted environment prefix used to run the notebook tools, an optional
// packed environment shipped to workers, and any directories the provisioner
// created that must be removed when the session ends.
type Environment struct {
	Prefix     string
	WorkerPack string
	Cleanup    []string

	// Wrapper replaces the conda wrapper when set, e.g. for a container or
	// module-load launcher.
	Wrapper []string
}

// RunPrefix returns the argv that runs a command inside the environment, or
// nil when neither a wrapper nor a prefix is set and commands run from PATH.
func (e Environment) RunPrefix() []string {
	if len(e.Wrapper) > 0 {
		return append([]string(nil), e.Wrapper...)
	}
	if e.Prefix == "" {
		return nil
	}
	return []string{"conda", "run", "--prefix", e.Prefix, "--no-capture-output"}
}
