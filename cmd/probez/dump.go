package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/zoobzio/probez/protos"
	"github.com/zoobzio/probez/tracedb"
)

var (
	seqColor   = color.New(color.FgCyan)
	nameColor  = color.New(color.Bold)
	argColor   = color.New(color.Faint)
	warnColor  = color.New(color.FgYellow, color.Bold)
	kindColors = map[string]*color.Color{
		tracedb.KindTrackEvent:      color.New(color.FgGreen),
		tracedb.KindTrackDescriptor: color.New(color.FgBlue),
		tracedb.KindTrigger:         color.New(color.FgRed, color.Bold),
		tracedb.KindForTesting:      color.New(color.FgMagenta),
		tracedb.KindOther:           color.New(color.FgWhite),
	}
)

func newDumpCmd() *cobra.Command {
	var (
		kind  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "dump TRACE",
		Short: "Print the packets of a trace file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			trace, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			packets, _, err := tracedb.NewDecoder().Decode(trace)
			if err != nil {
				// Print what decoded before the damage.
				warn(cmd, "%v", err)
			}
			return dump(cmd.OutOrStdout(), packets, kind, limit)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "only print packets of this kind (track_event, track_descriptor, trigger, ...)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "stop after this many packets (0: all)")
	return cmd
}

func dump(w io.Writer, packets []tracedb.Packet, kind string, limit int) error {
	printed := 0
	for _, p := range packets {
		if kind != "" && p.Kind != kind {
			continue
		}
		if limit > 0 && printed == limit {
			break
		}
		if _, err := fmt.Fprintln(w, formatPacket(p)); err != nil {
			return err
		}
		printed++
	}
	_, err := fmt.Fprintf(w, "%d of %d packets\n", printed, len(packets))
	return err
}

func formatPacket(p tracedb.Packet) string {
	var b strings.Builder
	b.WriteString(seqColor.Sprintf("seq=%-3d", p.SequenceID))
	fmt.Fprintf(&b, " ts=%d ", p.Timestamp)

	c, ok := kindColors[p.Kind]
	if !ok {
		c = kindColors[tracedb.KindOther]
	}
	label := p.Kind
	if p.EventType != "" {
		label += "/" + p.EventType
	}
	b.WriteString(c.Sprint(label))

	if p.Category != "" {
		fmt.Fprintf(&b, " [%s]", p.Category)
	}
	if p.Name != "" {
		b.WriteString(" " + nameColor.Sprint(p.Name))
	}
	if p.TrackUUID != 0 {
		fmt.Fprintf(&b, " track=%#x", p.TrackUUID)
	}
	if p.Value != nil {
		fmt.Fprintf(&b, " value=%g", *p.Value)
	}
	for _, a := range p.Args {
		b.WriteString(argColor.Sprintf(" %s=%s", a.Name, a.Value))
	}
	if p.Flags&protos.SeqIncrementalStateCleared != 0 {
		b.WriteString(" " + warnColor.Sprint("(state cleared)"))
	}
	if p.PreviousDropped {
		b.WriteString(" " + warnColor.Sprint("(after loss)"))
	}
	return b.String()
}
