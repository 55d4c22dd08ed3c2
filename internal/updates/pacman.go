package updates

import "strings"

// pacmanManager covers Arch hosts. Pacman has no partial-upgrade path
// and publishes no security metadata, so every upgrade is a full sync
// and Security is always false.
type pacmanManager struct{}

func (pacmanManager) Family() string       { return "pacman" }
func (pacmanManager) DetectBinary() string { return "pacman" }

func (pacmanManager) ListCommand() string {
	return "pacman -Sy >/dev/null 2>&1; pacman -Qu"
}

// pacman -Qu exits 1 when there is nothing to upgrade.
func (pacmanManager) ListExitOK(code int) bool { return code == 0 || code == 1 }

func (pacmanManager) UpgradeCommand(bool) string { return "pacman -Syu --noconfirm" }

func (pacmanManager) PackageUpgradeCommand(name string) string {
	return "pacman -S --noconfirm " + shellQuote(name)
}

func (pacmanManager) SupportsFullUpgrade() bool { return false }

// Parse reads `pacman -Qu` output. Lines look like:
//
//	linux 6.8.9.arch1-1 -> 6.9.1.arch1-1
func (pacmanManager) Parse(output string) []UpdateRecord {
	var records []UpdateRecord
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) != 4 || fields[2] != "->" {
			continue
		}
		records = append(records, UpdateRecord{
			Package:   fields[0],
			Current:   fields[1],
			Available: fields[3],
			Manager:   "pacman",
		})
	}
	return records
}
