package usp

import (
	"strings"

	"google.golang.org/protobuf/encoding/protowire"
)

// Msg field numbers.
const (
	fieldMsgHeader = 1
	fieldMsgBody   = 2

	fieldHeaderMsgID   = 1
	fieldHeaderMsgType = 2

	fieldBodyRequest = 1
)

var requestTypes = map[int32]MsgType{
	fieldReqGet:                  MsgTypeGet,
	fieldReqGetSupportedDM:       MsgTypeGetSupportedDM,
	fieldReqGetInstances:         MsgTypeGetInstances,
	fieldReqSet:                  MsgTypeSet,
	fieldReqAdd:                  MsgTypeAdd,
	fieldReqDelete:               MsgTypeDelete,
	fieldReqOperate:              MsgTypeOperate,
	fieldReqGetSupportedProtocol: MsgTypeGetSupportedProto,
}

// Validate checks the header against the request it carries.
func Validate(msg *Msg) error {
	if msg == nil {
		return ErrNilMessage
	}
	if strings.TrimSpace(msg.Header.MsgID) == "" {
		return ErrMissingMsgID
	}
	if msg.Body.Request == nil {
		return ErrMissingRequest
	}
	if requestTypes[msg.Body.Request.requestField()] != msg.Header.MsgType {
		return ErrMsgTypeMismatch
	}
	return nil
}

// Marshal encodes msg in the USP Msg protobuf wire format. Scalar fields
// holding their proto3 default are omitted.
func Marshal(msg *Msg) ([]byte, error) {
	if err := Validate(msg); err != nil {
		return nil, err
	}

	var header []byte
	header = appendString(header, fieldHeaderMsgID, msg.Header.MsgID)
	header = appendEnum(header, fieldHeaderMsgType, int32(msg.Header.MsgType))

	req := msg.Body.Request
	var request []byte
	request = appendMessage(request, protowire.Number(req.requestField()), encodeRequest(req))

	var body []byte
	body = appendMessage(body, fieldBodyRequest, request)

	out := make([]byte, 0, len(header)+len(body)+8)
	out = appendMessage(out, fieldMsgHeader, header)
	out = appendMessage(out, fieldMsgBody, body)
	return out, nil
}

func encodeRequest(req Request) []byte {
	var b []byte
	switch r := req.(type) {
	case *GetRequest:
		b = appendStrings(b, 1, r.ParamPaths)
		b = appendUint32(b, 2, r.MaxDepth)
	case *GetSupportedDMRequest:
		b = appendStrings(b, 1, r.ObjPaths)
		b = appendBool(b, 2, r.FirstLevelOnly)
		b = appendBool(b, 3, r.ReturnCommands)
		b = appendBool(b, 4, r.ReturnEvents)
		b = appendBool(b, 5, r.ReturnParams)
	case *GetInstancesRequest:
		b = appendStrings(b, 1, r.ObjPaths)
		b = appendBool(b, 2, r.FirstLevelOnly)
	case *SetRequest:
		b = appendBool(b, 1, r.AllowPartial)
		for _, obj := range r.UpdateObjs {
			var o []byte
			o = appendString(o, 1, obj.ObjPath)
			for _, s := range obj.ParamSettings {
				o = appendMessage(o, 2, encodeSetting(s.Param, s.Value, s.Required))
			}
			b = appendMessage(b, 2, o)
		}
	case *AddRequest:
		b = appendBool(b, 1, r.AllowPartial)
		for _, obj := range r.CreateObjs {
			var o []byte
			o = appendString(o, 1, obj.ObjPath)
			for _, s := range obj.ParamSettings {
				o = appendMessage(o, 2, encodeSetting(s.Param, s.Value, s.Required))
			}
			b = appendMessage(b, 2, o)
		}
	case *DeleteRequest:
		b = appendBool(b, 1, r.AllowPartial)
		b = appendStrings(b, 2, r.ObjPaths)
	case *OperateRequest:
		b = appendString(b, 1, r.Command)
		b = appendString(b, 2, r.CommandKey)
		b = appendBool(b, 3, r.SendResp)
		// map<string,string> entries are messages {key = 1, value = 2}.
		for _, arg := range r.InputArgs {
			var entry []byte
			entry = appendString(entry, 1, arg.Key)
			entry = appendString(entry, 2, arg.Value)
			b = appendMessage(b, 4, entry)
		}
	case *GetSupportedProtocolRequest:
		b = appendString(b, 1, r.ControllerSupportedProtocolVersions)
	}
	return b
}

// encodeSetting covers both CreateParamSetting and UpdateParamSetting, which
// share field numbers.
func encodeSetting(param, value string, required bool) []byte {
	var b []byte
	b = appendString(b, 1, param)
	b = appendString(b, 2, value)
	b = appendBool(b, 3, required)
	return b
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// appendStrings emits every element, empty ones included, as repeated
// fields carry no default.
func appendStrings(b []byte, num protowire.Number, vs []string) []byte {
	for _, v := range vs {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, v)
	}
	return b
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

func appendUint32(b []byte, num protowire.Number, v uint32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendEnum(b []byte, num protowire.Number, v int32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(int64(v)))
}

// appendMessage always emits the field so that an empty submessage still
// marks which oneof arm is set.
func appendMessage(b []byte, num protowire.Number, m []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m)
}
