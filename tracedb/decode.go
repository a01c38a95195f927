// Package tracedb decodes serialized probez traces and stores them in
// SQLite for offline querying.
package tracedb

import (
	"fmt"
	"strconv"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/zoobzio/probez/pbz"
	"github.com/zoobzio/probez/protos"
)

// Packet kinds.
const (
	KindTrackEvent      = "track_event"
	KindTrackDescriptor = "track_descriptor"
	KindTrigger         = "trigger"
	KindForTesting      = "for_testing"
	KindOther           = "other"
)

var eventTypeNames = map[uint64]string{
	protos.TrackEventTypeSliceBegin: "slice_begin",
	protos.TrackEventTypeSliceEnd:   "slice_end",
	protos.TrackEventTypeInstant:    "instant",
	protos.TrackEventTypeCounter:    "counter",
}

// Packet is one decoded TracePacket with interned names resolved.
//
//nolint:govet // Field order optimized for readability over memory efficiency
type Packet struct {
	SequenceID      uint32
	Timestamp       uint64
	Kind            string
	EventType       string
	Name            string
	Category        string
	TrackUUID       uint64
	Flags           uint64
	PreviousDropped bool
	Value           *float64
	Args            []Arg
}

// Arg is a debug annotation rendered as text.
type Arg struct {
	Name  string
	Value string
}

// Track is a decoded track descriptor.
type Track struct {
	UUID       uint64
	ParentUUID uint64
	Name       string
	Pid        uint64
	Tid        uint64
	Counter    bool
}

// Decoder turns trace bytes into packets. It keeps the interning tables of
// every sequence, so traces read in chunks must go through the same
// Decoder in order.
type Decoder struct {
	sequences map[uint64]map[protowire.Number]map[uint64]string
}

// NewDecoder returns a decoder with no sequence state.
func NewDecoder() *Decoder {
	return &Decoder{sequences: make(map[uint64]map[protowire.Number]map[uint64]string)}
}

// Decode parses a serialized Trace. Descriptors are returned both as
// packets and as tracks.
func (d *Decoder) Decode(trace []byte) ([]Packet, []Track, error) {
	var (
		packets []Packet
		tracks  []Track
	)
	it := pbz.NewIterator(trace)
	for it.Next() {
		f := it.Field()
		if f.Number != protos.TracePacket || f.Type != protowire.BytesType {
			continue
		}
		pkt, track, err := d.decodePacket(f.Bytes)
		if err != nil {
			return packets, tracks, fmt.Errorf("packet %d: %w", len(packets), err)
		}
		packets = append(packets, pkt)
		if track != nil {
			tracks = append(tracks, *track)
		}
	}
	if err := it.Err(); err != nil {
		return packets, tracks, fmt.Errorf("trace: %w", err)
	}
	return packets, tracks, nil
}

func (d *Decoder) decodePacket(b []byte) (Packet, *Track, error) {
	fields, err := pbz.Decode(b)
	if err != nil {
		return Packet{}, nil, err
	}

	pkt := Packet{Kind: KindOther}
	var seq uint64
	for _, f := range fields {
		switch f.Number {
		case protos.TracePacketTrustedPacketSequenceID:
			seq = f.Varint
			pkt.SequenceID = uint32(f.Varint) //nolint:gosec // written from a uint32
		case protos.TracePacketTimestamp:
			pkt.Timestamp = f.Varint
		case protos.TracePacketSequenceFlags:
			pkt.Flags = f.Varint
		case protos.TracePacketPreviousPacketDropped:
			pkt.PreviousDropped = f.Bool()
		}
	}

	if pkt.Flags&protos.SeqIncrementalStateCleared != 0 {
		delete(d.sequences, seq)
	}
	if interned, ok := pbz.Find(b, protos.TracePacketInternedData); ok {
		if err := d.intern(seq, interned.Bytes); err != nil {
			return pkt, nil, err
		}
	}

	var track *Track
	for _, f := range fields {
		switch f.Number {
		case protos.TracePacketTrackEvent:
			pkt.Kind = KindTrackEvent
			err = d.decodeEvent(seq, f.Bytes, &pkt)
		case protos.TracePacketTrackDescriptor:
			pkt.Kind = KindTrackDescriptor
			track, err = decodeDescriptor(f.Bytes)
			if err == nil {
				pkt.TrackUUID, pkt.Name = track.UUID, track.Name
			}
		case protos.TracePacketTrigger:
			pkt.Kind = KindTrigger
			if name, ok := pbz.Find(f.Bytes, protos.TriggerTriggerName); ok {
				pkt.Name = name.String()
			}
			if producer, ok := pbz.Find(f.Bytes, protos.TriggerProducerName); ok {
				pkt.Args = append(pkt.Args, Arg{Name: "producer", Value: producer.String()})
			}
		case protos.TracePacketForTesting:
			pkt.Kind = KindForTesting
			if payload, ok := pbz.Find(f.Bytes, protos.TestEventPayload); ok {
				if s, ok := pbz.Find(payload.Bytes, protos.TestPayloadStr); ok {
					pkt.Name = s.String()
				}
			}
		}
		if err != nil {
			return pkt, nil, err
		}
	}
	return pkt, track, nil
}

func (d *Decoder) intern(seq uint64, b []byte) error {
	tables := d.sequences[seq]
	if tables == nil {
		tables = make(map[protowire.Number]map[uint64]string)
		d.sequences[seq] = tables
	}
	entries, err := pbz.Decode(b)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Type != protowire.BytesType {
			continue
		}
		iid, _ := pbz.Find(e.Bytes, protos.InternedIID)
		name, _ := pbz.Find(e.Bytes, protos.InternedName)
		table := tables[e.Number]
		if table == nil {
			table = make(map[uint64]string)
			tables[e.Number] = table
		}
		table[iid.Varint] = name.String()
	}
	return nil
}

func (d *Decoder) lookup(seq uint64, table protowire.Number, iid uint64) string {
	if name, ok := d.sequences[seq][table][iid]; ok {
		return name
	}
	return "<unknown iid " + strconv.FormatUint(iid, 10) + ">"
}

func (d *Decoder) decodeEvent(seq uint64, b []byte, pkt *Packet) error {
	fields, err := pbz.Decode(b)
	if err != nil {
		return err
	}
	for _, f := range fields {
		switch f.Number {
		case protos.TrackEventType:
			pkt.EventType = eventTypeNames[f.Varint]
		case protos.TrackEventTrackUUID:
			pkt.TrackUUID = f.Varint
		case protos.TrackEventName:
			pkt.Name = f.String()
		case protos.TrackEventNameIID:
			pkt.Name = d.lookup(seq, protos.InternedDataEventNames, f.Varint)
		case protos.TrackEventCategories:
			pkt.Category = f.String()
		case protos.TrackEventCategoryIIDs:
			pkt.Category = d.lookup(seq, protos.InternedDataEventCategories, f.Varint)
		case protos.TrackEventCounterValue:
			v := float64(f.Int64())
			pkt.Value = &v
		case protos.TrackEventDoubleCounterValue:
			v := f.Double()
			pkt.Value = &v
		case protos.TrackEventDebugAnnotations:
			arg, err := d.decodeArg(seq, f.Bytes)
			if err != nil {
				return err
			}
			pkt.Args = append(pkt.Args, arg)
		case protos.TrackEventFlowIDs:
			pkt.Args = append(pkt.Args, Arg{Name: "flow", Value: strconv.FormatUint(f.Fixed, 10)})
		case protos.TrackEventTerminatingFlowIDs:
			pkt.Args = append(pkt.Args, Arg{Name: "terminating_flow", Value: strconv.FormatUint(f.Fixed, 10)})
		}
	}
	return nil
}

func (d *Decoder) decodeArg(seq uint64, b []byte) (Arg, error) {
	fields, err := pbz.Decode(b)
	if err != nil {
		return Arg{}, err
	}
	var arg Arg
	for _, f := range fields {
		switch f.Number {
		case protos.DebugAnnotationName:
			arg.Name = f.String()
		case protos.DebugAnnotationNameIID:
			arg.Name = d.lookup(seq, protos.InternedDataDebugAnnotationNames, f.Varint)
		case protos.DebugAnnotationBoolValue:
			arg.Value = strconv.FormatBool(f.Bool())
		case protos.DebugAnnotationUintValue:
			arg.Value = strconv.FormatUint(f.Varint, 10)
		case protos.DebugAnnotationIntValue:
			arg.Value = strconv.FormatInt(f.Int64(), 10)
		case protos.DebugAnnotationDoubleValue:
			arg.Value = strconv.FormatFloat(f.Double(), 'g', -1, 64)
		case protos.DebugAnnotationStringValue:
			arg.Value = f.String()
		case protos.DebugAnnotationPointerValue:
			arg.Value = "0x" + strconv.FormatUint(f.Varint, 16)
		}
	}
	return arg, nil
}

func decodeDescriptor(b []byte) (*Track, error) {
	fields, err := pbz.Decode(b)
	if err != nil {
		return nil, err
	}
	t := &Track{}
	for _, f := range fields {
		switch f.Number {
		case protos.TrackDescriptorUUID:
			t.UUID = f.Varint
		case protos.TrackDescriptorParentUUID:
			t.ParentUUID = f.Varint
		case protos.TrackDescriptorName:
			t.Name = f.String()
		case protos.TrackDescriptorProcess:
			if pid, ok := pbz.Find(f.Bytes, protos.ProcessDescriptorPid); ok {
				t.Pid = pid.Varint
			}
			if name, ok := pbz.Find(f.Bytes, protos.ProcessDescriptorProcessName); ok && t.Name == "" {
				t.Name = name.String()
			}
		case protos.TrackDescriptorThread:
			if pid, ok := pbz.Find(f.Bytes, protos.ThreadDescriptorPid); ok {
				t.Pid = pid.Varint
			}
			if tid, ok := pbz.Find(f.Bytes, protos.ThreadDescriptorTid); ok {
				t.Tid = tid.Varint
			}
		case protos.TrackDescriptorCounter:
			t.Counter = true
		}
	}
	return t, nil
}
