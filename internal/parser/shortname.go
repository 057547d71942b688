package parser

import "strings"

var shortPrefixes = []struct{ long, short string }{
	{"GigabitEthernet", "Gig"},
	{"FastEthernet", "Fa"},
	{"Ethernet", "Eth"},
	{"Loopback", "lo"},
	{"Serial", "Ser"},
}

// ShortName 接口显示用短名，仅替换前缀，仅供展示
func ShortName(name string) string {
	for _, p := range shortPrefixes {
		if strings.HasPrefix(name, p.long) {
			return p.short + strings.TrimPrefix(name, p.long)
		}
	}
	return name
}
