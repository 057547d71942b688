package parser

import (
	"regexp"
	"strings"

	"github.com/sshcollectorpro/devsession/pkg/device"
)

var (
	// "2: enp0s3: <BROADCAST,MULTICAST,UP,LOWER_UP> mtu 1500 ..."，名称可带 @ 后缀（如 veth0@if5）
	linkRe  = regexp.MustCompile(`^(\d+): ([^:@\s]+)(?:@\S+)?: <(.*)> mtu`)
	inetRe  = regexp.MustCompile(`^\s+inet (\d+\.\d+\.\d+\.\d+)`)
	etherRe = regexp.MustCompile(`^\s+link/ether ([\w:]+)`)
)

// LinuxFetchCommands Linux 主机的配置获取命令：主机名、内核版本、接口列表
var LinuxFetchCommands = []string{"hostname", "uname -r", "ip a"}

// ParseLinux 解析按顺序拼接的 hostname、uname -r、ip a 输出：
// 第一行非空行为主机名，第二行非空行（若不是接口行）为内核版本，其余为 ip a 输出
func ParseLinux(text string) (*DeviceModel, error) {
	lines := splitLines(text)
	var hostname, version string
	rest := 0
	for rest < len(lines) && (hostname == "" || version == "") {
		line := trim(lines[rest])
		if line == "" {
			rest++
			continue
		}
		if linkRe.MatchString(lines[rest]) {
			break
		}
		if hostname == "" {
			hostname = line
		} else {
			version = line
		}
		rest++
	}
	return ParseLinuxSections(hostname, version, strings.Join(lines[rest:], "\n"))
}

// ParseLinuxSections 分别给出三条命令的输出时使用
func ParseLinuxSections(hostname, version, ipOutput string) (*DeviceModel, error) {
	m := &DeviceModel{
		Family:   device.FamilyLinux,
		Hostname: trim(hostname),
		Version:  trim(version),
	}
	var ifaces ifaceList[LinuxInterface]
	var current *LinuxInterface

	finalize := func() {
		if current != nil {
			ifaces.add(current.Name, *current)
			current = nil
		}
	}

	for _, line := range splitLines(ipOutput) {
		if mm := linkRe.FindStringSubmatch(line); mm != nil {
			finalize()
			current = &LinuxInterface{Name: mm[2], Up: hasFlag(mm[3], "UP")}
			continue
		}
		if current == nil {
			continue
		}
		// 多个 IPv4 地址时保留第一个
		if mm := inetRe.FindStringSubmatch(line); mm != nil && current.IPAddress == "" {
			current.IPAddress = mm[1]
			continue
		}
		if mm := etherRe.FindStringSubmatch(line); mm != nil {
			current.MACAddress = mm[1]
		}
	}
	finalize()

	if ifaces.items == nil {
		ifaces.items = []LinuxInterface{}
	}
	m.Linux = &LinuxConfig{Interfaces: ifaces.items}
	return requireHostname(m)
}

// hasFlag 标志按逗号精确匹配，LOWER_UP 不等于 UP
func hasFlag(flags, flag string) bool {
	for _, f := range strings.Split(flags, ",") {
		if f == flag {
			return true
		}
	}
	return false
}
