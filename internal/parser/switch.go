package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sshcollectorpro/devsession/pkg/device"
)

var (
	switchportModeRe = regexp.MustCompile(`^switchport mode (\S+)`)
	accessVLANRe     = regexp.MustCompile(`^switchport access vlan (\d+)`)
	vlanRe           = regexp.MustCompile(`^vlan (\d+)`)
	descriptionRe    = regexp.MustCompile(`^description (.+)$`)

	psMaximumRe   = regexp.MustCompile(`^switchport port-security maximum (\d+)`)
	psViolationRe = regexp.MustCompile(`^switchport port-security violation (protect|restrict|shutdown)`)
	psMacRe       = regexp.MustCompile(`^switchport port-security mac-address (?:sticky )?([0-9a-fA-F]{4}\.[0-9a-fA-F]{4}\.[0-9a-fA-F]{4})`)
	psAgingTimeRe = regexp.MustCompile(`^switchport port-security aging time (\d+)`)
	psAgingTypeRe = regexp.MustCompile(`^switchport port-security aging type (\S+)`)
)

// ParseSwitch 解析交换机 running-config
func ParseSwitch(text string) (*DeviceModel, error) {
	m := &DeviceModel{Family: device.FamilySwitch}
	var ifaces ifaceList[SwitchInterface]
	var vlans []VLAN
	vlanIndex := make(map[int]int)
	var current *SwitchInterface

	finalize := func() {
		if current != nil {
			ifaces.add(current.Name, *current)
			current = nil
		}
	}

	lines := splitLines(text)
	for i, raw := range lines {
		if commonHeader(raw, m) {
			continue
		}

		if name, ok := directive(raw, "interface"); ok {
			finalize()
			current = &SwitchInterface{Name: name, ShortName: ShortName(name), VLAN: 1}
			continue
		}

		// VLAN 表与接口上下文无关
		if mm := vlanRe.FindStringSubmatch(raw); mm != nil {
			id, _ := strconv.Atoi(mm[1])
			v := VLAN{ID: id}
			if i+1 < len(lines) {
				if name, ok := directive(trim(lines[i+1]), "name"); ok {
					v.Name = name
				}
			}
			if at, ok := vlanIndex[id]; ok {
				vlans[at] = v
			} else {
				vlanIndex[id] = len(vlans)
				vlans = append(vlans, v)
			}
			continue
		}

		if current != nil {
			applySwitchField(current, trim(raw))
		}
	}
	finalize()

	m.Switch = &SwitchConfig{Interfaces: ifaces.items, VLANs: vlans}
	if m.Switch.Interfaces == nil {
		m.Switch.Interfaces = []SwitchInterface{}
	}
	if m.Switch.VLANs == nil {
		m.Switch.VLANs = []VLAN{}
	}
	return requireHostname(m)
}

func applySwitchField(iface *SwitchInterface, line string) {
	ps := &iface.PortSecurity
	switch {
	case isShutdown(line):
		iface.Shutdown = true
	case descriptionRe.MatchString(line):
		iface.Description = descriptionRe.FindStringSubmatch(line)[1]
	case switchportModeRe.MatchString(line):
		iface.SwitchportMode = switchportModeRe.FindStringSubmatch(line)[1]
	case accessVLANRe.MatchString(line):
		iface.VLAN, _ = strconv.Atoi(accessVLANRe.FindStringSubmatch(line)[1])
	case line == "switchport port-security":
		ps.Enabled = true
	case psMaximumRe.MatchString(line):
		ps.Maximum, _ = strconv.Atoi(psMaximumRe.FindStringSubmatch(line)[1])
	case psViolationRe.MatchString(line):
		ps.Violation = psViolationRe.FindStringSubmatch(line)[1]
	case line == "switchport port-security mac-address sticky":
		ps.Sticky = true
	case psMacRe.MatchString(line):
		ps.MACAddresses = append(ps.MACAddresses, psMacRe.FindStringSubmatch(line)[1])
		if strings.Contains(line, " sticky ") {
			ps.Sticky = true
		}
	case psAgingTimeRe.MatchString(line):
		ps.AgingTime, _ = strconv.Atoi(psAgingTimeRe.FindStringSubmatch(line)[1])
	case psAgingTypeRe.MatchString(line):
		ps.AgingType = psAgingTypeRe.FindStringSubmatch(line)[1]
	case line == "spanning-tree bpduguard enable":
		ps.BPDUGuard = true
	}
}
