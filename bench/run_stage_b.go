// 阶段 B: 网络数扩展，对比 IPv4 库与 IPv6 库（IPv4 经 ::/96 子树）的查询延迟
package main

import (
	"fmt"

	"github.com/ic-timon/ipgeo/bench/gen"
	"github.com/ic-timon/ipgeo/bench/metrics"
)

func runStageB(opts stageOpts) {
	counts := []int{1_000, 10_000, 100_000}

	var rows []metrics.Row
	for _, n := range counts {
		networks := gen.RandomNetworks(n, 4, int64(n))
		addrs := gen.RandomAddrs(opts.lookups, networks, int64(n)+1)
		for _, ipVersion := range []uint16{4, 6} {
			fmt.Printf("阶段 B: networks=%d ip_version=%d\n", n, ipVersion)
			buf, err := gen.BuildDB(ipVersion, 28, networks)
			if err != nil {
				panic(err)
			}
			r, closeDB := openDB(buf, opts.mmap)

			row := metrics.Row{
				Stage:      "b",
				RecordSize: 28,
				IPVersion:  int(ipVersion),
				Networks:   n,
				FileBytes:  len(buf),
				Mmap:       opts.mmap,
			}
			measure(&row, r, addrs, 1)
			closeDB()

			rows = append(rows, row)
			printRow(row)
		}
	}

	// IPv6 网络（不经 IPv4 子树）作为对照
	networks6 := gen.RandomNetworks(opts.networks, 6, 7)
	addrs6 := make([]string, opts.lookups)
	for i := range addrs6 {
		addrs6[i] = networks6[i%len(networks6)].Addr().String()
	}
	fmt.Printf("阶段 B: IPv6 networks=%d\n", len(networks6))
	buf, err := gen.BuildDB(6, 28, networks6)
	if err != nil {
		panic(err)
	}
	r, closeDB := openDB(buf, opts.mmap)
	row := metrics.Row{
		Stage:      "b",
		RecordSize: 28,
		IPVersion:  6,
		Networks:   len(networks6),
		FileBytes:  len(buf),
		Mmap:       opts.mmap,
	}
	measure(&row, r, addrs6, 1)
	closeDB()
	rows = append(rows, row)
	printRow(row)

	writeReports(rows, "bench_report_stage_b_")
}
