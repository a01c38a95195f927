// Package protos holds the field numbers of the trace wire schema.
//
// The numbers match the public Perfetto protos so traces written by probez
// can be opened by any consumer of that format. Only the fields probez
// writes or reads are listed; consumers must skip everything else.
package protos

import "google.golang.org/protobuf/encoding/protowire"

// Trace.
const (
	TracePacket protowire.Number = 1
)

// TracePacket.
const (
	TracePacketTimestamp               protowire.Number = 8
	TracePacketTrustedPacketSequenceID protowire.Number = 10
	TracePacketTrackEvent              protowire.Number = 11
	TracePacketInternedData            protowire.Number = 12
	TracePacketSequenceFlags           protowire.Number = 13
	TracePacketProducerName            protowire.Number = 20 // probez extension, unused by upstream
	TracePacketIncrementalStateCleared protowire.Number = 41
	TracePacketPreviousPacketDropped   protowire.Number = 42
	TracePacketTrigger                 protowire.Number = 46
	TracePacketTrackDescriptor         protowire.Number = 60
	TracePacketFirstPacketOnSequence   protowire.Number = 87
	TracePacketForTesting              protowire.Number = 900
)

// TracePacket.SequenceFlags.
const (
	SeqUnspecified             uint64 = 0
	SeqIncrementalStateCleared uint64 = 1
	SeqNeedsIncrementalState   uint64 = 2
)

// TestEvent.
const (
	TestEventStr      protowire.Number = 1
	TestEventSeqValue protowire.Number = 2
	TestEventCounter  protowire.Number = 3
	TestEventIsLast   protowire.Number = 4
	TestEventPayload  protowire.Number = 5
)

// TestEvent.TestPayload.
const (
	TestPayloadStr        protowire.Number = 1
	TestPayloadNested     protowire.Number = 2
	TestPayloadSingleInt  protowire.Number = 5
	TestPayloadRepeatedIn protowire.Number = 6
)

// TrackEvent.
const (
	TrackEventCategoryIIDs       protowire.Number = 3
	TrackEventDebugAnnotations   protowire.Number = 4
	TrackEventType               protowire.Number = 9
	TrackEventNameIID            protowire.Number = 10
	TrackEventTrackUUID          protowire.Number = 11
	TrackEventCategories         protowire.Number = 22
	TrackEventName               protowire.Number = 23
	TrackEventCounterValue       protowire.Number = 30
	TrackEventDoubleCounterValue protowire.Number = 44
	TrackEventFlowIDs            protowire.Number = 47
	TrackEventTerminatingFlowIDs protowire.Number = 48
)

// TrackEvent.Type.
const (
	TrackEventTypeUnspecified uint64 = 0
	TrackEventTypeSliceBegin  uint64 = 1
	TrackEventTypeSliceEnd    uint64 = 2
	TrackEventTypeInstant     uint64 = 3
	TrackEventTypeCounter     uint64 = 4
)

// InternedData.
const (
	InternedDataEventCategories      protowire.Number = 1
	InternedDataEventNames           protowire.Number = 2
	InternedDataDebugAnnotationNames protowire.Number = 3
)

// EventCategory, EventName and DebugAnnotationName share one layout.
const (
	InternedIID  protowire.Number = 1
	InternedName protowire.Number = 2
)

// DebugAnnotation.
const (
	DebugAnnotationNameIID      protowire.Number = 1
	DebugAnnotationBoolValue    protowire.Number = 2
	DebugAnnotationUintValue    protowire.Number = 3
	DebugAnnotationIntValue     protowire.Number = 4
	DebugAnnotationDoubleValue  protowire.Number = 5
	DebugAnnotationStringValue  protowire.Number = 6
	DebugAnnotationPointerValue protowire.Number = 7
	DebugAnnotationName         protowire.Number = 10
)

// TrackDescriptor.
const (
	TrackDescriptorUUID       protowire.Number = 1
	TrackDescriptorName       protowire.Number = 2
	TrackDescriptorProcess    protowire.Number = 3
	TrackDescriptorThread     protowire.Number = 4
	TrackDescriptorParentUUID protowire.Number = 5
	TrackDescriptorCounter    protowire.Number = 8
)

// ProcessDescriptor.
const (
	ProcessDescriptorPid         protowire.Number = 1
	ProcessDescriptorProcessName protowire.Number = 6
)

// ThreadDescriptor.
const (
	ThreadDescriptorPid protowire.Number = 1
	ThreadDescriptorTid protowire.Number = 2
)

// CounterDescriptor.
const (
	CounterDescriptorUnit protowire.Number = 3
)

// Trigger.
const (
	TriggerTriggerName  protowire.Number = 1
	TriggerProducerName protowire.Number = 2
)

// TraceConfig.
const (
	TraceConfigBuffers                protowire.Number = 1
	TraceConfigDataSources            protowire.Number = 2
	TraceConfigDurationMs             protowire.Number = 3
	TraceConfigTriggerConfig          protowire.Number = 17
	TraceConfigUniqueSessionName      protowire.Number = 22
	TraceConfigIncrementalStateConfig protowire.Number = 21
)

// TraceConfig.BufferConfig.
const (
	BufferConfigSizeKB     protowire.Number = 1
	BufferConfigFillPolicy protowire.Number = 4
)

// TraceConfig.BufferConfig.FillPolicy.
const (
	FillPolicyUnspecified uint64 = 0
	FillPolicyRingBuffer  uint64 = 1
	FillPolicyDiscard     uint64 = 2
)

// TraceConfig.DataSource.
const (
	TraceConfigDataSourceConfig protowire.Number = 1
)

// TraceConfig.IncrementalStateConfig.
const (
	IncrementalStateConfigClearPeriodMs protowire.Number = 1
)

// DataSourceConfig.
const (
	DataSourceConfigName             protowire.Number = 1
	DataSourceConfigTargetBuffer     protowire.Number = 2
	DataSourceConfigTrackEventConfig protowire.Number = 113
	DataSourceConfigLegacyConfig     protowire.Number = 1000
)

// TrackEventConfig.
const (
	TrackEventConfigDisabledCategories protowire.Number = 1
	TrackEventConfigEnabledCategories  protowire.Number = 2
	TrackEventConfigDisabledTags       protowire.Number = 3
	TrackEventConfigEnabledTags        protowire.Number = 4
)

// TraceConfig.TriggerConfig.
const (
	TriggerConfigTriggerMode      protowire.Number = 1
	TriggerConfigTriggers         protowire.Number = 2
	TriggerConfigTriggerTimeoutMs protowire.Number = 3
)

// TraceConfig.TriggerConfig.TriggerMode.
const (
	TriggerModeUnspecified  uint64 = 0
	TriggerModeStartTracing uint64 = 1
	TriggerModeStopTracing  uint64 = 2
)

// TraceConfig.TriggerConfig.Trigger.
const (
	TriggerConfigTriggerName        protowire.Number = 1
	TriggerConfigTriggerStopDelayMs protowire.Number = 3
)
