package updates

import (
	"context"
	"sort"
	"strings"

	"github.com/fleetpatch/fleetpatch/internal/remote"
)

// Manager abstracts one package manager family.
type Manager interface {
	// Family is the stable identifier: apt, dnf, zypper, pacman.
	Family() string

	// DetectBinary is the executable probed on the target to decide
	// whether this family is installed.
	DetectBinary() string

	// ListCommand produces the pending-update listing parsed by Parse.
	ListCommand() string

	// ListExitOK reports whether an exit code from the list command
	// still carries a valid listing. Some managers signal "updates
	// available" through a non-zero exit.
	ListExitOK(code int) bool

	// UpgradeCommand upgrades everything. With full set it may also
	// install or remove packages to resolve dependency changes; only
	// valid when SupportsFullUpgrade reports true.
	UpgradeCommand(full bool) string

	// PackageUpgradeCommand upgrades a single named package.
	PackageUpgradeCommand(name string) string

	// SupportsFullUpgrade reports whether the family distinguishes a
	// full upgrade from a plain one.
	SupportsFullUpgrade() bool

	// Parse converts listing output into update records. Unparseable
	// lines are skipped, never fatal.
	Parse(output string) []UpdateRecord
}

// Families returns all supported managers in detection priority order.
func Families() []Manager {
	return []Manager{aptManager{}, dnfManager{}, zypperManager{}, pacmanManager{}}
}

// FamilyByName returns the manager for a family identifier, or nil.
func FamilyByName(name string) Manager {
	for _, m := range Families() {
		if m.Family() == name {
			return m
		}
	}
	return nil
}

// detectCommand probes for every family binary in a single remote
// invocation; the output is one detected binary name per line.
func detectCommand(families []Manager) string {
	var b strings.Builder
	b.WriteString("for c in")
	for _, m := range families {
		b.WriteString(" ")
		b.WriteString(m.DetectBinary())
	}
	b.WriteString("; do command -v $c >/dev/null 2>&1 && echo $c; done")
	return b.String()
}

// Detect probes the target for installed package managers and returns
// them in priority order, with operator-disabled families filtered out.
func Detect(ctx context.Context, runner remote.Runner, ep remote.Endpoint, opts remote.Options, disabled func(family string) bool) ([]Manager, error) {
	families := Families()
	res, err := runner.Run(ctx, ep, detectCommand(families), opts)
	if err != nil {
		return nil, err
	}

	found := make(map[string]bool)
	for _, line := range strings.Split(res.Stdout, "\n") {
		found[strings.TrimSpace(line)] = true
	}

	var detected []Manager
	for _, m := range families {
		if !found[m.DetectBinary()] {
			continue
		}
		if disabled != nil && disabled(m.Family()) {
			continue
		}
		detected = append(detected, m)
	}
	return detected, nil
}

// RecordSetEqual compares two update listings as sets, ignoring order.
func RecordSetEqual(a, b []UpdateRecord) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]UpdateRecord(nil), a...)
	bs := append([]UpdateRecord(nil), b...)
	less := func(s []UpdateRecord) func(i, j int) bool {
		return func(i, j int) bool {
			if s[i].Manager != s[j].Manager {
				return s[i].Manager < s[j].Manager
			}
			return s[i].Package < s[j].Package
		}
	}
	sort.Slice(as, less(as))
	sort.Slice(bs, less(bs))
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
