package lfs

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	pkgErrors "repo-migrator/pkg/errors"
)

// 单位换算，1 GB = 1024 MB = 1024*1024 KB
var sizeUnits = map[string]int64{
	"B":  1,
	"KB": 1 << 10,
	"MB": 1 << 20,
	"GB": 1 << 30,
}

var sizePattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([KMG]?B)$`)

// ParseSize 将 "<数字><单位>" 解析为字节数，单位 B/KB/MB/GB 不区分大小写
func ParseSize(s string) (int64, error) {
	m := sizePattern.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(s)))
	if m == nil {
		return 0, malformedSize(s)
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, malformedSize(s)
	}

	bytes := value * float64(sizeUnits[m[2]])
	if bytes >= math.MaxInt64 {
		return 0, malformedSize(s)
	}
	return int64(bytes), nil
}

func malformedSize(s string) error {
	return pkgErrors.New(pkgErrors.CodeMalformedSize, fmt.Sprintf("无法解析大小 %q，格式应为 <数字><B|KB|MB|GB>", s))
}
