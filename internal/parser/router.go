package parser

import (
	"regexp"
	"strings"

	"github.com/sshcollectorpro/devsession/pkg/device"
)

var (
	ipAddressRe = regexp.MustCompile(`^ip address (\S+) (\S+)`)
	routerRe    = regexp.MustCompile(`^router (\S+)`)
	// network 行可能自带掩码 "network A mask M"，或 OSPF 反掩码 "network A W area N"
	networkRe = regexp.MustCompile(`^network (\S+)(?: mask (\S+)| (\d+\.\d+\.\d+\.\d+))?`)
	netmaskRe = regexp.MustCompile(`netmask (\S+)`)
)

// ParseRouter 解析路由器 running-config
func ParseRouter(text string) (*DeviceModel, error) {
	m := &DeviceModel{Family: device.FamilyRouter}
	var ifaces ifaceList[RouterInterface]
	routing := []RoutingEntry{}
	var current *RouterInterface

	finalize := func() {
		if current != nil {
			ifaces.add(current.Name, *current)
			current = nil
		}
	}

	lines := splitLines(text)
	for i, raw := range lines {
		// 全局指令必须位于行首，缩进的子模式行（如 router rip 下的 version 2）不算
		if commonHeader(raw, m) {
			continue
		}

		if name, ok := directive(raw, "interface"); ok {
			finalize()
			current = &RouterInterface{Name: name, ShortName: ShortName(name)}
			continue
		}

		// 路由协议：network/netmask 取自 router 指令后紧邻的两行
		if mm := routerRe.FindStringSubmatch(raw); mm != nil {
			if entry, ok := routingEntry(mm[1], lines, i); ok {
				routing = append(routing, entry)
			}
			continue
		}

		line := trim(raw)
		if current == nil {
			continue
		}
		switch {
		case isShutdown(line):
			current.Shutdown = true
		case descriptionRe.MatchString(line):
			current.Description = descriptionRe.FindStringSubmatch(line)[1]
		case ipAddressRe.MatchString(line) && !strings.HasSuffix(line, " secondary"):
			mm := ipAddressRe.FindStringSubmatch(line)
			current.IPAddress, current.SubnetMask = mm[1], mm[2]
		}
	}
	finalize()

	if ifaces.items == nil {
		ifaces.items = []RouterInterface{}
	}
	m.Router = &RouterConfig{Interfaces: ifaces.items, Routing: routing}
	return requireHostname(m)
}

func routingEntry(protocol string, lines []string, at int) (RoutingEntry, bool) {
	if at+1 >= len(lines) {
		return RoutingEntry{}, false
	}
	nm := networkRe.FindStringSubmatch(trim(lines[at+1]))
	if nm == nil {
		return RoutingEntry{}, false
	}
	entry := RoutingEntry{Protocol: protocol, Network: nm[1], Wildcard: nm[3]}
	switch {
	case nm[2] != "":
		entry.Mask = nm[2]
	case at+2 < len(lines):
		if mk := netmaskRe.FindStringSubmatch(trim(lines[at+2])); mk != nil {
			entry.Mask = mk[1]
		}
	}
	return entry, entry.Mask != "" || entry.Wildcard != ""
}
