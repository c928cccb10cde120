// 阶段 A: 对比 24/28/32 位记录宽度下的查询延迟与文件大小
package main

import (
	"fmt"

	"github.com/ic-timon/ipgeo/bench/gen"
	"github.com/ic-timon/ipgeo/bench/metrics"
)

func runStageA(opts stageOpts) {
	networks := gen.RandomNetworks(opts.networks, 4, 42)
	addrs := gen.RandomAddrs(opts.lookups, networks, 43)

	var rows []metrics.Row
	for _, rs := range []uint16{24, 28, 32} {
		fmt.Printf("阶段 A: record_size=%d networks=%d\n", rs, len(networks))
		buf, err := gen.BuildDB(6, rs, networks)
		if err != nil {
			panic(err)
		}
		r, closeDB := openDB(buf, opts.mmap)

		row := metrics.Row{
			Stage:      "a",
			RecordSize: int(rs),
			IPVersion:  6,
			Networks:   len(networks),
			FileBytes:  len(buf),
			Mmap:       opts.mmap,
		}
		measure(&row, r, addrs, 1)
		closeDB()

		rows = append(rows, row)
		printRow(row)
	}
	writeReports(rows, "bench_report_stage_a_")
}
