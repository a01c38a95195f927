package pbz_test

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/zoobzio/probez/pbz"
	"github.com/zoobzio/probez/protos"
)

func ExampleIterator() {
	m := pbz.NewMessage(0)
	m.AppendString(protos.TestEventStr, "event")
	m.AppendVarint(protos.TestEventCounter, 42)
	m.BeginNested(protos.TestEventPayload)
	m.AppendString(protos.TestPayloadStr, "nested")
	m.AppendVarint(protos.TestPayloadSingleInt, 7)
	m.EndNested()
	m.AppendBool(protos.TestEventIsLast, true)

	it := pbz.NewIterator(m.Bytes())
	for it.Next() {
		f := it.Field()
		switch f.Type {
		case protowire.VarintType:
			fmt.Printf("%d: varint %d\n", f.Number, f.Varint)
		case protowire.BytesType:
			fmt.Printf("%d: %d bytes\n", f.Number, len(f.Bytes))
		}
	}
	if err := it.Err(); err != nil {
		fmt.Println(err)
	}

	payload, _ := pbz.Find(m.Bytes(), protos.TestEventPayload)
	str, _ := pbz.Find(payload.Bytes, protos.TestPayloadStr)
	fmt.Println(str.String())
	// Output:
	// 1: 5 bytes
	// 3: varint 42
	// 5: 10 bytes
	// 4: varint 1
	// nested
}
