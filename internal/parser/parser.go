// Package parser 将设备配置文本解析为设备模型。
//
// 每个解析器对按行切分的文本做一次从左到右的扫描，只维护一个"当前接口"状态；
// 无法识别的行直接忽略，仅在缺少主机名时返回 ParseError。
package parser

import (
	"fmt"
	"strings"

	"github.com/sshcollectorpro/devsession/pkg/device"
)

// Parse 按设备族分派到对应解析器；防火墙配置按路由器格式解析
func Parse(family device.Family, text string) (*DeviceModel, error) {
	switch family {
	case device.FamilySwitch:
		return ParseSwitch(text)
	case device.FamilyRouter, device.FamilyFirewall:
		m, err := ParseRouter(text)
		if m != nil {
			m.Family = family
		}
		if pe, ok := err.(*ParseError); ok {
			pe.Family = family
		}
		return m, err
	case device.FamilyLinux:
		return ParseLinux(text)
	default:
		return nil, fmt.Errorf("%w: no parser for device family %q", ErrParse, family)
	}
}

// splitLines 按行切分并去掉行尾 CR
func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, "\r")
	}
	return lines
}

func trim(s string) string { return strings.TrimSpace(s) }

// directive 若行以关键字开头，返回其后的内容
func directive(line, keyword string) (string, bool) {
	if !strings.HasPrefix(line, keyword+" ") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(line, keyword+" ")), true
}

// commonHeader 处理行首的 hostname/version 指令，返回是否已处理；传入未去缩进的原始行
func commonHeader(line string, m *DeviceModel) bool {
	if v, ok := directive(line, "hostname"); ok {
		m.Hostname = v
		return true
	}
	if v, ok := directive(line, "version"); ok {
		m.Version = v
		return true
	}
	return false
}

// isShutdown 仅整行为 shutdown 时成立，"no shutdown" 不算
func isShutdown(line string) bool {
	return line == "shutdown"
}

func requireHostname(m *DeviceModel) (*DeviceModel, error) {
	if m.Hostname == "" {
		return nil, &ParseError{Family: m.Family, Field: "hostname"}
	}
	return m, nil
}

// ifaceList 保持接口顺序并保证名称唯一，同名接口以后出现的定义为准
type ifaceList[T any] struct {
	items []T
	index map[string]int
}

func (l *ifaceList[T]) add(name string, item T) {
	if l.index == nil {
		l.index = make(map[string]int)
	}
	if i, ok := l.index[name]; ok {
		l.items[i] = item
		return
	}
	l.index[name] = len(l.items)
	l.items = append(l.items, item)
}
