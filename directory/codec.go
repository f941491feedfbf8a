package directory

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/unkn0wn-root/formcache/codec"
)

// ProtoCodec stores a FormDirectory as a protobuf ListValue of [id, name]
// pairs, which keeps fetch order without generated types.
type ProtoCodec struct {
	inner codec.Protobuf[*structpb.ListValue]
}

var _ codec.Codec[FormDirectory] = ProtoCodec{}

func NewProtoCodec() ProtoCodec {
	return ProtoCodec{inner: codec.NewProtobuf(func() *structpb.ListValue { return &structpb.ListValue{} })}
}

func (c ProtoCodec) Encode(d FormDirectory) ([]byte, error) {
	lv := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(d))}
	for _, f := range d {
		pair := &structpb.ListValue{Values: []*structpb.Value{
			structpb.NewStringValue(f.ID),
			structpb.NewStringValue(f.Name),
		}}
		lv.Values = append(lv.Values, structpb.NewListValue(pair))
	}
	return c.inner.Encode(lv)
}

func (c ProtoCodec) Decode(b []byte) (FormDirectory, error) {
	lv, err := c.inner.Decode(b)
	if err != nil {
		return nil, err
	}
	out := make(FormDirectory, 0, len(lv.GetValues()))
	for i, v := range lv.GetValues() {
		pair := v.GetListValue().GetValues()
		if len(pair) != 2 {
			return nil, fmt.Errorf("directory: proto entry %d: want [id, name], got %d values", i, len(pair))
		}
		out = append(out, Form{ID: pair[0].GetStringValue(), Name: pair[1].GetStringValue()})
	}
	return out, nil
}

// NewCodec returns the codec registered under name:
// "json" (default), "cbor", "msgpack" or "protobuf".
// maxDecode > 0 rejects larger stored payloads.
func NewCodec(name string, maxDecode int) (codec.Codec[FormDirectory], error) {
	var inner codec.Codec[FormDirectory]
	switch name {
	case "", "json":
		inner = codec.JSON[FormDirectory]{}
	case "cbor":
		c, err := codec.NewCBOR[FormDirectory](false)
		if err != nil {
			return nil, err
		}
		inner = c
	case "msgpack":
		inner = codec.Msgpack[FormDirectory]{}
	case "protobuf":
		inner = NewProtoCodec()
	default:
		return nil, fmt.Errorf("directory: unknown codec %q", name)
	}
	if maxDecode > 0 {
		return codec.Limit[FormDirectory]{Inner: inner, MaxDecode: maxDecode}, nil
	}
	return inner, nil
}
