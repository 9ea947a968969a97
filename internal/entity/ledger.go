package entity

// LedgerPackage is a package recorded by the last successful run.
type LedgerPackage struct {
	Name    string       `yaml:"name"`
	Repo    string       `yaml:"repo"`
	Version string       `yaml:"version"`
	Fetches int64        `yaml:"fetches"`
	Files   []LedgerFile `yaml:"files"`
}

type LedgerFile struct {
	ID     string `yaml:"id"`
	Source string `yaml:"source"`
	Output string `yaml:"output"`
}

// LedgerRun describes the run a ledger version was written by.
type LedgerRun struct {
	RunID       string          `yaml:"run_id"`
	Environment string          `yaml:"environment"`
	StartedAt   string          `yaml:"started_at"`
	Packages    []LedgerPackage `yaml:"packages"`
}
