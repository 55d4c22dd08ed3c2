package updates

import "strings"

// aptManager covers Debian and Ubuntu hosts via apt-get / apt.
type aptManager struct{}

func (aptManager) Family() string       { return "apt" }
func (aptManager) DetectBinary() string { return "apt-get" }

func (aptManager) ListCommand() string {
	// The update refresh runs first so the listing is current.
	return "apt-get update -qq >/dev/null 2>&1; apt list --upgradable 2>/dev/null"
}

func (aptManager) ListExitOK(code int) bool { return code == 0 }

func (aptManager) UpgradeCommand(full bool) string {
	verb := "upgrade"
	if full {
		verb = "dist-upgrade"
	}
	return "DEBIAN_FRONTEND=noninteractive apt-get -y -o Dpkg::Options::=--force-confdef " + verb
}

func (aptManager) PackageUpgradeCommand(name string) string {
	return "DEBIAN_FRONTEND=noninteractive apt-get -y install --only-upgrade " + shellQuote(name)
}

func (aptManager) SupportsFullUpgrade() bool { return true }

// Parse reads `apt list --upgradable` output. Lines look like:
//
//	bash/jammy-security 5.1-6ubuntu1.1 amd64 [upgradable from: 5.1-6ubuntu1]
func (aptManager) Parse(output string) []UpdateRecord {
	var records []UpdateRecord
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Listing") || strings.HasPrefix(line, "WARNING") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		name, repo, ok := strings.Cut(fields[0], "/")
		if !ok || name == "" {
			continue
		}
		rec := UpdateRecord{
			Package:   name,
			Available: fields[1],
			Manager:   "apt",
			Repo:      repo,
			Security:  strings.Contains(repo, "-security"),
		}
		if i := strings.Index(line, "[upgradable from: "); i >= 0 {
			rec.Current = strings.TrimSuffix(line[i+len("[upgradable from: "):], "]")
		}
		records = append(records, rec)
	}
	return records
}

// shellQuote single-quotes an argument for use inside a remote shell
// command line.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
