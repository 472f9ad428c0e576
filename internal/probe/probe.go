// Package probe answers the two environment questions the runtime asks before
// touching the network or the disk: is the active uplink unmetered, and how
// much space is left on a volume. Every unknown degrades to the conservative
// answer (metered, zero bytes free).
package probe

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"inferd/internal/common/fsutil"
)

// Probe is the query surface used by the lifecycle controller and the downloader.
type Probe interface {
	IsUnmeteredNetwork() bool
	AvailableBytes(path string) uint64
}

// Network modes accepted by System.NetworkMode.
const (
	NetworkAuto      = "auto"
	NetworkUnmetered = "unmetered"
	NetworkMetered   = "metered"
)

// arphrdEther is the sysfs interface type for Ethernet-framed links.
const arphrdEther = 1

// meteredPrefixes are interface names that belong to cellular modems or tethering.
var meteredPrefixes = []string{"wwan", "rmnet", "ccmni", "ppp", "usb", "rndis", "qmi"}

// System implements Probe against procfs/sysfs and statfs.
type System struct {
	// ProcRoot and SysRoot default to /proc and /sys; tests point them at fixtures.
	ProcRoot string
	SysRoot  string
	// NetworkMode forces the classification when not "auto".
	NetworkMode string
	Log         zerolog.Logger
}

// NewSystem returns a System probe with default roots and auto network detection.
func NewSystem(log zerolog.Logger) *System {
	return &System{ProcRoot: "/proc", SysRoot: "/sys", NetworkMode: NetworkAuto, Log: log}
}

// IsUnmeteredNetwork reports true only when the default route leaves through a
// Wi-Fi or Ethernet interface.
func (s *System) IsUnmeteredNetwork() bool {
	switch s.NetworkMode {
	case NetworkUnmetered:
		return true
	case NetworkMetered:
		return false
	}
	iface, ok := s.defaultRouteInterface()
	if !ok {
		s.Log.Debug().Str("event", "probe_network").Msg("no default route")
		return false
	}
	class := s.classify(iface)
	s.Log.Debug().Str("event", "probe_network").Str("iface", iface).Str("class", class).Msg("classified uplink")
	return class == "wifi" || class == "ethernet"
}

// AvailableBytes returns the space available to unprivileged writers on the
// volume holding path. The nearest existing ancestor is queried when path does
// not exist yet.
func (s *System) AvailableBytes(path string) uint64 {
	dir := fsutil.NearestExistingDir(path)
	n, err := freeBytes(dir)
	if err != nil {
		s.Log.Debug().Err(err).Str("event", "probe_storage").Str("path", dir).Msg("statfs failed")
		return 0
	}
	return n
}

// defaultRouteInterface picks the lowest-metric up route with a zero destination and mask.
func (s *System) defaultRouteInterface() (string, bool) {
	f, err := os.Open(filepath.Join(s.root(s.ProcRoot, "/proc"), "net", "route"))
	if err != nil {
		return "", false
	}
	defer f.Close()

	best, bestMetric := "", int64(-1)
	sc := bufio.NewScanner(f)
	first := true
	for sc.Scan() {
		if first {
			first = false
			continue
		}
		fields := strings.Fields(sc.Text())
		if len(fields) < 8 {
			continue
		}
		if fields[1] != "00000000" || fields[7] != "00000000" {
			continue
		}
		flags, err := strconv.ParseInt(fields[3], 16, 64)
		if err != nil || flags&0x1 == 0 {
			continue
		}
		metric, err := strconv.ParseInt(fields[6], 10, 64)
		if err != nil {
			continue
		}
		if bestMetric < 0 || metric < bestMetric {
			best, bestMetric = fields[0], metric
		}
	}
	return best, best != ""
}

// classify returns "wifi", "ethernet", "cellular" or "unknown".
func (s *System) classify(iface string) string {
	lower := strings.ToLower(iface)
	for _, p := range meteredPrefixes {
		if strings.HasPrefix(lower, p) {
			return "cellular"
		}
	}
	base := filepath.Join(s.root(s.SysRoot, "/sys"), "class", "net", iface)
	switch readDevType(filepath.Join(base, "uevent")) {
	case "wwan":
		return "cellular"
	case "wlan":
		return "wifi"
	}
	if fsutil.PathExists(filepath.Join(base, "wireless")) || fsutil.PathExists(filepath.Join(base, "phy80211")) {
		return "wifi"
	}
	b, err := os.ReadFile(filepath.Join(base, "type"))
	if err != nil {
		return "unknown"
	}
	if t, err := strconv.Atoi(strings.TrimSpace(string(b))); err == nil && t == arphrdEther {
		return "ethernet"
	}
	return "unknown"
}

func readDevType(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(b), "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "DEVTYPE="); ok {
			return strings.ToLower(v)
		}
	}
	return ""
}

func (s *System) root(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
