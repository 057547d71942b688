package device

import "strings"

// Family 设备族（由调用方提供的设备类型提示）
type Family string

const (
	FamilySwitch   Family = "switch"
	FamilyRouter   Family = "router"
	FamilyFirewall Family = "firewall"
	FamilyLinux    Family = "linux"
	FamilyWindows  Family = "windows"
	FamilyUnknown  Family = "unknown"
)

// ParseFamily 解析设备族名称，兼容 cisco_ 前缀写法；无法识别时返回 unknown
func ParseFamily(s string) Family {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimPrefix(v, "cisco_")
	switch Family(v) {
	case FamilySwitch, FamilyRouter, FamilyFirewall, FamilyLinux, FamilyWindows:
		return Family(v)
	}
	return FamilyUnknown
}

// IsCisco 是否为 Cisco 风格网络设备（交换机/路由器/防火墙）
func (f Family) IsCisco() bool {
	return f == FamilySwitch || f == FamilyRouter || f == FamilyFirewall
}

// In 判断设备族是否在给定名称列表中
func (f Family) In(names []string) bool {
	for _, n := range names {
		if ParseFamily(n) == f {
			return true
		}
	}
	return false
}

func (f Family) String() string { return string(f) }
