package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DefaultSysfsRoot is where the kernel publishes video4linux nodes.
const DefaultSysfsRoot = "/sys/class/video4linux"

// V4L2Enumerator lists cameras from sysfs. Only the first node of each
// physical device (index 0) is reported; the others carry metadata streams.
type V4L2Enumerator struct {
	SysfsRoot string
	DevRoot   string
}

// NewV4L2Enumerator uses the standard sysfs and /dev locations.
func NewV4L2Enumerator() *V4L2Enumerator {
	return &V4L2Enumerator{SysfsRoot: DefaultSysfsRoot, DevRoot: "/dev"}
}

// Devices implements Enumerator.
func (e *V4L2Enumerator) Devices() ([]Device, error) {
	entries, err := os.ReadDir(e.SysfsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", e.SysfsRoot, err)
	}

	type node struct {
		num int
		dev Device
	}
	var nodes []node

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "video") {
			continue
		}
		num, err := strconv.Atoi(strings.TrimPrefix(name, "video"))
		if err != nil {
			continue
		}

		dir := filepath.Join(e.SysfsRoot, name)
		if idx, ok := readSysfs(dir, "index"); ok && idx != "0" {
			continue
		}

		label, ok := readSysfs(dir, "name")
		if !ok || label == "" {
			label = name
		}

		nodes = append(nodes, node{
			num: num,
			dev: Device{ID: filepath.Join(e.DevRoot, name), Name: label},
		})
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].num < nodes[j].num })

	devices := make([]Device, len(nodes))
	for i, n := range nodes {
		devices[i] = n.dev
	}
	return devices, nil
}

func readSysfs(dir, attr string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(dir, attr))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}
