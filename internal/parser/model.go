package parser

import (
	"errors"
	"fmt"

	"github.com/sshcollectorpro/devsession/pkg/device"
)

// ErrParse 配置文本缺少必需字段
var ErrParse = errors.New("parse error")

// ParseError 解析失败，Field 为缺失的必需字段
type ParseError struct {
	Family device.Family
	Field  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: %s configuration has no %s", e.Family, e.Field)
}

func (e *ParseError) Unwrap() error { return ErrParse }

// DeviceModel 设备模型：公共字段 + 按设备族区分的具体内容，三者仅其一非空
type DeviceModel struct {
	Family   device.Family `json:"family"`
	Hostname string        `json:"hostname"`
	Version  string        `json:"version"`

	Switch *SwitchConfig `json:"switch,omitempty"`
	Router *RouterConfig `json:"router,omitempty"`
	Linux  *LinuxConfig  `json:"linux,omitempty"`
}

// InterfaceNames 按文档顺序返回接口名称
func (m *DeviceModel) InterfaceNames() []string {
	var names []string
	switch {
	case m.Switch != nil:
		for _, i := range m.Switch.Interfaces {
			names = append(names, i.Name)
		}
	case m.Router != nil:
		for _, i := range m.Router.Interfaces {
			names = append(names, i.Name)
		}
	case m.Linux != nil:
		for _, i := range m.Linux.Interfaces {
			names = append(names, i.Name)
		}
	}
	return names
}

// SwitchConfig 交换机
type SwitchConfig struct {
	Interfaces []SwitchInterface `json:"interfaces"`
	VLANs      []VLAN            `json:"vlans"`
}

// SwitchInterface 交换机接口
type SwitchInterface struct {
	Name           string       `json:"name"`
	ShortName      string       `json:"short_name"`
	Description    string       `json:"description,omitempty"`
	SwitchportMode string       `json:"switchport_mode"`
	VLAN           int          `json:"vlan"`
	Shutdown       bool         `json:"shutdown"`
	PortSecurity   PortSecurity `json:"port_security"`
}

// PortSecurity 端口安全
type PortSecurity struct {
	Enabled      bool     `json:"enabled"`
	Maximum      int      `json:"maximum,omitempty"`
	Violation    string   `json:"violation,omitempty"`
	Sticky       bool     `json:"sticky"`
	MACAddresses []string `json:"mac_addresses,omitempty"`
	AgingTime    int      `json:"aging_time,omitempty"`
	AgingType    string   `json:"aging_type,omitempty"`
	BPDUGuard    bool     `json:"bpdu_guard"`
}

// VLAN 表项，ID 唯一
type VLAN struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// RouterConfig 路由器
type RouterConfig struct {
	Interfaces []RouterInterface `json:"interfaces"`
	Routing    []RoutingEntry    `json:"routing_protocols"`
}

// RouterInterface 路由器接口
type RouterInterface struct {
	Name        string `json:"name"`
	ShortName   string `json:"short_name"`
	Description string `json:"description,omitempty"`
	IPAddress   string `json:"ip_address"`
	SubnetMask  string `json:"subnet_mask"`
	Shutdown    bool   `json:"shutdown"`
}

// RoutingEntry 路由协议表项，按文档顺序，允许重复
// Mask 仅取自 "mask M" 或 netmask 行；OSPF 的反掩码单独记录在 Wildcard
type RoutingEntry struct {
	Protocol string `json:"protocol"`
	Network  string `json:"network"`
	Mask     string `json:"mask"`
	Wildcard string `json:"wildcard,omitempty"`
}

// LinuxConfig Linux 主机
type LinuxConfig struct {
	Interfaces []LinuxInterface `json:"interfaces"`
}

// LinuxInterface Linux 网卡
type LinuxInterface struct {
	Name       string `json:"name"`
	Up         bool   `json:"up"`
	IPAddress  string `json:"ip_address,omitempty"`
	MACAddress string `json:"mac_address,omitempty"`
}
