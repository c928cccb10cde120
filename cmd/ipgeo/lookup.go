package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ic-timon/ipgeo/geo"
	"github.com/ic-timon/ipgeo/mmdb"
)

func newLookupCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup {ip...|-}",
		Short: "print the record of each address as JSON, one per line",
		Long: "Print the record of each address as a JSON line. With - addresses are read\n" +
			"from stdin until EOF and the database is reloaded when its file is replaced.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.runLocator(cmd, args, writeRecord)
		},
	}
}

func newCountryCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "country {ip...|-}",
		Short: "print the ISO country code of each address",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.runLocator(cmd, args, writeCountry)
		},
	}
}

type writeFunc func(w io.Writer, res geo.BatchResult) error

func writeRecord(w io.Writer, res geo.BatchResult) error {
	stream := jsoniter.ConfigCompatibleWithStandardLibrary.BorrowStream(w)
	defer jsoniter.ConfigCompatibleWithStandardLibrary.ReturnStream(stream)
	stream.WriteObjectStart()
	stream.WriteObjectField("ip")
	stream.WriteString(res.IP)
	stream.WriteMore()
	stream.WriteObjectField("found")
	stream.WriteBool(res.Found)
	if res.Found {
		b, err := res.Value.MarshalJSON()
		if err != nil {
			return err
		}
		stream.WriteMore()
		stream.WriteObjectField("record")
		stream.WriteRaw(string(b))
	}
	stream.WriteObjectEnd()
	stream.WriteRaw("\n")
	return stream.Flush()
}

func writeCountry(w io.Writer, res geo.BatchResult) error {
	code := "-"
	if res.Found {
		if c := geo.CountryOf(res.Value); c != "" {
			code = c
		}
	}
	_, err := fmt.Fprintf(w, "%s\t%s\n", res.IP, code)
	return err
}

func (o *options) runLocator(cmd *cobra.Command, args []string, write writeFunc) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	reg := prometheus.NewRegistry()
	l, err := geo.New(o.cfg.Geo, o.logger, reg)
	if err != nil {
		return err
	}
	defer l.Close()
	defer logStats(o.logger, reg)

	out := cmd.OutOrStdout()
	if len(args) == 1 && args[0] == "-" {
		if o.cfg.Geo.Watch {
			done := make(chan struct{})
			go func() {
				defer close(done)
				if err := l.Watch(ctx); err != nil {
					level.Warn(o.logger).Log("msg", "not watching database", "err", err)
				}
			}()
			defer func() { <-done }()
			defer cancel()
		}
		return o.lookupStream(ctx, cmd.InOrStdin(), out, l, write)
	}

	for _, res := range l.LookupBatch(ctx, args) {
		if err := o.emit(out, res, write); err != nil {
			return err
		}
	}
	return nil
}

// emit writes one result. Malformed addresses are logged and skipped so one
// bad input does not drop the answers for the rest.
func (o *options) emit(out io.Writer, res geo.BatchResult, write writeFunc) error {
	var ie *mmdb.InputError
	switch {
	case errors.As(res.Err, &ie):
		level.Warn(o.logger).Log("msg", "skipping address", "input", res.IP, "err", res.Err)
		return nil
	case res.Err != nil:
		return res.Err
	}
	return write(out, res)
}

// lookupStream answers one address per line.
func (o *options) lookupStream(ctx context.Context, in io.Reader, out io.Writer, l *geo.Locator, write writeFunc) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		ip := strings.TrimSpace(sc.Text())
		if ip == "" {
			continue
		}
		res := geo.BatchResult{IP: ip}
		res.Value, res.Found, res.Err = l.Lookup(ctx, ip)
		if err := o.emit(out, res, write); err != nil {
			return err
		}
	}
	return sc.Err()
}

func logStats(logger log.Logger, reg *prometheus.Registry) {
	mfs, err := reg.Gather()
	if err != nil {
		return
	}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			kv := []interface{}{"msg", "stats", "metric", mf.GetName()}
			for _, lp := range m.GetLabel() {
				kv = append(kv, lp.GetName(), lp.GetValue())
			}
			switch {
			case m.GetCounter() != nil:
				kv = append(kv, "value", m.GetCounter().GetValue())
			case m.GetGauge() != nil:
				kv = append(kv, "value", m.GetGauge().GetValue())
			}
			level.Debug(logger).Log(kv...)
		}
	}
}
