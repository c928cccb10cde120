// Package gen 提供压测用随机网络与地址生成
package gen

import (
	"math/rand"
	"net/netip"

	"github.com/ic-timon/ipgeo/mmdb/mmdbtest"
)

// countries 作为压测记录的取值，模拟真实库中大量网络共享少量记录
var countries = []string{"US", "DE", "GB", "FR", "JP", "CN", "BR", "IN", "AU", "CA", "NL", "SE"}

// RandomNetworks 生成 n 个随机网络。ipVersion=4 时前缀长度 16..24，6 时 32..48
func RandomNetworks(n int, ipVersion int, seed int64) []netip.Prefix {
	rng := rand.New(rand.NewSource(seed))
	out := make([]netip.Prefix, 0, n)
	seen := make(map[netip.Prefix]struct{}, n)
	for len(out) < n {
		var p netip.Prefix
		if ipVersion == 4 {
			var a [4]byte
			rng.Read(a[:])
			p = netip.PrefixFrom(netip.AddrFrom4(a), 16+rng.Intn(9)).Masked()
		} else {
			var a [16]byte
			rng.Read(a[:])
			// 2000::/3 全局单播
			a[0] = 0x20 | a[0]&0x1f
			p = netip.PrefixFrom(netip.AddrFrom16(a), 32+rng.Intn(17)).Masked()
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// RandomAddrs 生成 n 个随机地址，约一半落在 networks 中
func RandomAddrs(n int, networks []netip.Prefix, seed int64) []string {
	rng := rand.New(rand.NewSource(seed))
	out := make([]string, n)
	for i := range out {
		if len(networks) > 0 && i%2 == 0 {
			out[i] = networks[rng.Intn(len(networks))].Addr().String()
			continue
		}
		var a [4]byte
		rng.Read(a[:])
		out[i] = netip.AddrFrom4(a).String()
	}
	return out
}

// BuildDB 用给定网络构建库文件内容，IPv6 库额外包含 IPv4 网络时放在 ::/96 下
func BuildDB(ipVersion, recordSize uint16, networks []netip.Prefix) ([]byte, error) {
	w := mmdbtest.NewWriter(ipVersion, recordSize)
	for i, p := range networks {
		rec := mmdbtest.Map{
			{Key: "country", Value: mmdbtest.Map{
				{Key: "iso_code", Value: countries[i%len(countries)]},
				{Key: "geoname_id", Value: uint32(1000 + i%len(countries))},
			}},
			{Key: "location", Value: mmdbtest.Map{
				{Key: "latitude", Value: float64(i%180) - 90},
				{Key: "longitude", Value: float64(i%360) - 180},
			}},
		}
		if err := w.Insert(p, rec); err != nil {
			return nil, err
		}
	}
	return w.Bytes()
}
