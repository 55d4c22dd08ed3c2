package updates

import "strings"

// dnfManager covers Fedora, RHEL and derivatives.
type dnfManager struct{}

func (dnfManager) Family() string       { return "dnf" }
func (dnfManager) DetectBinary() string { return "dnf" }

func (dnfManager) ListCommand() string { return "dnf -q check-update" }

// dnf check-update exits 100 when updates are available; 0 means none.
func (dnfManager) ListExitOK(code int) bool { return code == 0 || code == 100 }

func (dnfManager) UpgradeCommand(bool) string { return "dnf -y upgrade" }

func (dnfManager) PackageUpgradeCommand(name string) string {
	return "dnf -y upgrade " + shellQuote(name)
}

// dnf upgrade already resolves obsoletes; there is no separate full mode.
func (dnfManager) SupportsFullUpgrade() bool { return false }

// Parse reads `dnf check-update` output. Lines look like:
//
//	kernel-core.x86_64    6.8.9-300.fc40    updates
//
// The "Obsoleting Packages" trailer and anything else that does not fit
// the three-column shape is skipped.
func (dnfManager) Parse(output string) []UpdateRecord {
	var records []UpdateRecord
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Obsoleting") || strings.HasPrefix(line, "Last metadata") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			continue
		}
		name, _, ok := strings.Cut(fields[0], ".")
		if !ok || name == "" {
			continue
		}
		repo := fields[2]
		records = append(records, UpdateRecord{
			Package:   name,
			Available: fields[1],
			Manager:   "dnf",
			Repo:      repo,
			Security:  strings.Contains(repo, "security"),
		})
	}
	return records
}
