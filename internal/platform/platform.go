// Package platform classifies URLs by the content platform that hosts them.
package platform

import (
	"net/url"
	"strings"
)

// Platform names returned by Identify.
const (
	WeChat       = "wechat"
	Xiaohongshu  = "xiaohongshu"
	Zhihu        = "zhihu"
	Douyin       = "douyin"
	Taobao       = "taobao"
	Tmall        = "tmall"
	JD           = "jd"
	Bilibili     = "bilibili"
	OfficialSite = "official-site"
)

// table is checked in order; the first domain contained in the host wins.
var table = []struct {
	domain   string
	platform string
}{
	{"mp.weixin.qq.com", WeChat},
	{"xiaohongshu.com", Xiaohongshu},
	{"xhslink.com", Xiaohongshu},
	{"zhihu.com", Zhihu},
	{"douyin.com", Douyin},
	{"taobao.com", Taobao},
	{"tmall.com", Tmall},
	{"jd.com", JD},
	{"bilibili.com", Bilibili},
}

var loginRequired = map[string]bool{
	WeChat:      true,
	Xiaohongshu: true,
	Taobao:      true,
	Tmall:       true,
	JD:          true,
}

// Identify returns the platform hosting rawURL and whether it sits behind a
// login wall. Unknown or unparsable hosts are treated as an official site.
func Identify(rawURL string) (name string, requiresLogin bool) {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = strings.ToLower(u.Host)
	}
	if host == "" {
		return OfficialSite, false
	}

	for _, entry := range table {
		if strings.Contains(host, entry.domain) {
			return entry.platform, loginRequired[entry.platform]
		}
	}
	return OfficialSite, false
}
