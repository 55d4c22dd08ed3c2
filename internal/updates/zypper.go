package updates

import "strings"

// zypperManager covers openSUSE and SLES hosts.
type zypperManager struct{}

func (zypperManager) Family() string       { return "zypper" }
func (zypperManager) DetectBinary() string { return "zypper" }

func (zypperManager) ListCommand() string {
	return "zypper --non-interactive list-updates"
}

func (zypperManager) ListExitOK(code int) bool { return code == 0 }

func (zypperManager) UpgradeCommand(full bool) string {
	if full {
		return "zypper --non-interactive dist-upgrade"
	}
	return "zypper --non-interactive update"
}

func (zypperManager) PackageUpgradeCommand(name string) string {
	return "zypper --non-interactive update " + shellQuote(name)
}

func (zypperManager) SupportsFullUpgrade() bool { return true }

// Parse reads `zypper list-updates` table output. Rows look like:
//
//	v | Main Repository | bash | 5.2.21-1.1 | 5.2.26-1.1 | x86_64
//
// Header and separator rows have no version columns and are skipped.
func (zypperManager) Parse(output string) []UpdateRecord {
	var records []UpdateRecord
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, "|") {
			continue
		}
		cols := strings.Split(line, "|")
		if len(cols) < 6 {
			continue
		}
		for i := range cols {
			cols[i] = strings.TrimSpace(cols[i])
		}
		name := cols[2]
		if name == "" || name == "Name" {
			continue
		}
		repo := cols[1]
		records = append(records, UpdateRecord{
			Package:   name,
			Current:   cols[3],
			Available: cols[4],
			Manager:   "zypper",
			Repo:      repo,
			Security:  strings.Contains(strings.ToLower(repo), "security"),
		})
	}
	return records
}
