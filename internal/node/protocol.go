package node

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	kindPropose = "propose"
	kindVote    = "vote"
)

// encode builds kind:epoch:value message content.
func encode(kind string, epoch uint64, value string) string {
	return fmt.Sprintf("%s:%d:%s", kind, epoch, value)
}

// decode parses content produced by encode. Other content is reported as
// not protocol traffic.
func decode(content string) (kind string, epoch uint64, value string, ok bool) {
	arr := strings.SplitN(content, ":", 3)
	if len(arr) != 3 {
		return "", 0, "", false
	}
	switch arr[0] {
	case kindPropose, kindVote:
	default:
		return "", 0, "", false
	}
	epoch, err := strconv.ParseUint(arr[1], 10, 64)
	if err != nil {
		return "", 0, "", false
	}
	return arr[0], epoch, arr[2], true
}
