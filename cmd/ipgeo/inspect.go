package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"
)

func newNetworkCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "network {ip...}",
		Short: "print the network each address belongs to and its record",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := o.openReader()
			if err != nil {
				return err
			}
			defer r.Close()

			out := cmd.OutOrStdout()
			for _, ip := range args {
				v, prefix, found, err := r.LookupNetwork(ip)
				if err != nil {
					return err
				}
				record := "-"
				if found {
					record = v.String()
				}
				fmt.Fprintf(out, "%s\t%s\t%s\n", ip, prefix, record)
			}
			return nil
		},
	}
}

func newMetadataCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "metadata",
		Short: "print the database metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := o.openReader()
			if err != nil {
				return err
			}
			defer r.Close()
			md := r.Metadata()

			var size string
			if fi, err := os.Stat(o.cfg.Geo.DBPath); err == nil {
				size = humanize.IBytes(uint64(fi.Size()))
			}
			descs := make([]string, 0, len(md.Description))
			for lang, text := range md.Description {
				descs = append(descs, lang+": "+text)
			}
			sort.Strings(descs)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "path\t%s\n", o.cfg.Geo.DBPath)
			fmt.Fprintf(tw, "size\t%s\n", size)
			fmt.Fprintf(tw, "database_type\t%s\n", md.DatabaseType)
			fmt.Fprintf(tw, "format\t%d.%d\n", md.BinaryFormatMajorVersion, md.BinaryFormatMinorVersion)
			fmt.Fprintf(tw, "ip_version\t%d\n", md.IPVersion)
			fmt.Fprintf(tw, "record_size\t%d bits\n", md.RecordSize)
			fmt.Fprintf(tw, "node_count\t%s\n", humanize.Comma(int64(md.NodeCount)))
			fmt.Fprintf(tw, "search_tree\t%s\n", humanize.IBytes(md.SearchTreeSize()))
			fmt.Fprintf(tw, "built\t%s (%s)\n", md.BuildTime().Format("2006-01-02 15:04:05 MST"), humanize.Time(md.BuildTime()))
			fmt.Fprintf(tw, "languages\t%s\n", strings.Join(md.Languages, ", "))
			fmt.Fprintf(tw, "description\t%s\n", strings.Join(descs, "; "))
			return tw.Flush()
		},
	}
}

func newVerifyCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "check the whole database file for corruption",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := o.openReader()
			if err != nil {
				return err
			}
			defer r.Close()
			if err := r.Verify(); err != nil {
				level.Error(o.logger).Log("msg", "database failed verification", "path", o.cfg.Geo.DBPath, "err", err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", o.cfg.Geo.DBPath)
			return nil
		},
	}
}
