// 阶段 C: 多 goroutine 共享同一 Reader 的并发查询
package main

import (
	"fmt"

	"github.com/ic-timon/ipgeo/bench/gen"
	"github.com/ic-timon/ipgeo/bench/metrics"
)

func runStageC(opts stageOpts) {
	concurrencies := []int{1, 4, 8, 16, 32}

	networks := gen.RandomNetworks(opts.networks, 4, 12345)
	addrs := gen.RandomAddrs(opts.lookups, networks, 12346)
	buf, err := gen.BuildDB(6, 28, networks)
	if err != nil {
		panic(err)
	}
	r, closeDB := openDB(buf, opts.mmap)
	defer closeDB()
	fmt.Printf("阶段 C: networks=%d nodes=%d mmap=%v\n", len(networks), r.Metadata().NodeCount, opts.mmap)

	var rows []metrics.Row
	for _, concurrency := range concurrencies {
		fmt.Printf("阶段 C: 并发数 %d\n", concurrency)
		row := metrics.Row{
			Stage:      "c",
			RecordSize: 28,
			IPVersion:  6,
			Networks:   len(networks),
			FileBytes:  len(buf),
			Mmap:       opts.mmap,
		}
		measure(&row, r, addrs, concurrency)
		rows = append(rows, row)
		printRow(row)
	}
	writeReports(rows, "bench_report_stage_c_")
}
