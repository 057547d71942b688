package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/encoding/simplifiedchinese"
)

func TestEnsureUTF8Bytes(t *testing.T) {
	assert.Equal(t, "", EnsureUTF8Bytes(nil))
	assert.Equal(t, "show version", EnsureUTF8Bytes([]byte("show version")))

	gbk, err := simplifiedchinese.GB18030.NewEncoder().Bytes([]byte("接口已关闭"))
	assert.NoError(t, err)
	assert.Equal(t, "接口已关闭", EnsureUTF8Bytes(gbk))
}

func TestNormalizeTranscript(t *testing.T) {
	raw := []byte("sw1#show clock\r\n\x1b[K10:00\r\nsw1#ab\bc\rexit\r\n")
	assert.Equal(t, "sw1#show clock\n10:00\nsw1#ac\nexit\n", NormalizeTranscript(raw))
}
