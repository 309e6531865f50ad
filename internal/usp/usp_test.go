package usp

import (
	"testing"

	"github.com/danmuck/uspctl/internal/script"
	"github.com/danmuck/uspctl/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

type wireField struct {
	num    protowire.Number
	typ    protowire.Type
	bytes  []byte
	varint uint64
}

func decodeFields(t *testing.T, b []byte) []wireField {
	t.Helper()
	var out []wireField
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		require.GreaterOrEqual(t, n, 0, "tag")
		b = b[n:]
		f := wireField{num: num, typ: typ}
		switch typ {
		case protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			require.GreaterOrEqual(t, m, 0, "bytes")
			f.bytes, b = v, b[m:]
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			require.GreaterOrEqual(t, m, 0, "varint")
			f.varint, b = v, b[m:]
		default:
			t.Fatalf("unexpected wire type %v", typ)
		}
		out = append(out, f)
	}
	return out
}

func only(t *testing.T, fields []wireField, num protowire.Number) wireField {
	t.Helper()
	var hits []wireField
	for _, f := range fields {
		if f.num == num {
			hits = append(hits, f)
		}
	}
	require.Len(t, hits, 1, "field %d", num)
	return hits[0]
}

func all(fields []wireField, num protowire.Number) []wireField {
	var hits []wireField
	for _, f := range fields {
		if f.num == num {
			hits = append(hits, f)
		}
	}
	return hits
}

func strs(fields []wireField, num protowire.Number) []string {
	var out []string
	for _, f := range all(fields, num) {
		out = append(out, string(f.bytes))
	}
	return out
}

// requestOf marshals msg and returns the header fields, the req_type arm
// number and the decoded request fields.
func requestOf(t *testing.T, msg *Msg) ([]wireField, protowire.Number, []wireField) {
	t.Helper()
	raw, err := Marshal(msg)
	require.NoError(t, err)

	top := decodeFields(t, raw)
	header := decodeFields(t, only(t, top, fieldMsgHeader).bytes)
	body := decodeFields(t, only(t, top, fieldMsgBody).bytes)
	request := decodeFields(t, only(t, body, fieldBodyRequest).bytes)
	require.Len(t, request, 1)
	return header, request[0].num, decodeFields(t, request[0].bytes)
}

func TestBuildSelectsTypeAndArm(t *testing.T) {
	testlog.Start(t)

	cases := []struct {
		d    script.Directive
		typ  MsgType
		wire protowire.Number
	}{
		{script.Get{Paths: []string{"Device."}}, MsgTypeGet, 1},
		{script.GetSupportedDM{Paths: []string{"Device."}}, MsgTypeGetSupportedDM, 2},
		{script.GetInstances{Paths: []string{"Device."}}, MsgTypeGetInstances, 3},
		{script.Set{}, MsgTypeSet, 4},
		{script.Add{}, MsgTypeAdd, 5},
		{script.Delete{}, MsgTypeDelete, 6},
		{script.Operate{Command: "Device.Reboot()"}, MsgTypeOperate, 7},
		{script.GetSupportedProtocol{Versions: "1.2"}, MsgTypeGetSupportedProto, 9},
	}
	for _, tc := range cases {
		msg, err := Build(tc.d, script.MustMessageID("3"))
		require.NoError(t, err, tc.d.Kind())
		assert.Equal(t, tc.typ, msg.Header.MsgType, tc.d.Kind())

		header, arm, _ := requestOf(t, msg)
		assert.Equal(t, tc.wire, arm, tc.d.Kind())
		assert.Equal(t, "3", string(only(t, header, fieldHeaderMsgID).bytes))
		assert.Equal(t, uint64(tc.typ), only(t, header, fieldHeaderMsgType).varint)
	}
}

func TestBuildRendersLargeMessageID(t *testing.T) {
	testlog.Start(t)

	id := script.MustMessageID("99999999999999999999").Next()
	msg, err := Build(script.Get{Paths: []string{"Device."}}, id)
	require.NoError(t, err)
	assert.Equal(t, "100000000000000000000", msg.Header.MsgID)
}

func TestBuildOwnsCopies(t *testing.T) {
	testlog.Start(t)

	d := script.Get{Paths: []string{"Device.A.", "Device.B."}}
	msg, err := Build(d, script.MustMessageID("1"))
	require.NoError(t, err)

	d.Paths[0] = "Device.Changed."
	assert.Equal(t, []string{"Device.A.", "Device.B."}, msg.Body.Request.(*GetRequest).ParamPaths)
}

func TestBuildNilDirective(t *testing.T) {
	testlog.Start(t)

	_, err := Build(nil, script.MustMessageID("1"))
	assert.ErrorIs(t, err, ErrNilDirective)
}

func TestMarshalGetKeepsPathOrder(t *testing.T) {
	testlog.Start(t)

	msg, err := Build(script.Get{Paths: []string{"Device.B.", "", "Device.A."}}, script.MustMessageID("1"))
	require.NoError(t, err)

	_, _, get := requestOf(t, msg)
	assert.Equal(t, []string{"Device.B.", "", "Device.A."}, strs(get, 1))
}

func TestMarshalEmptyRequestStillSelectsArm(t *testing.T) {
	testlog.Start(t)

	msg, err := Build(script.Delete{}, script.MustMessageID("1"))
	require.NoError(t, err)

	_, arm, fields := requestOf(t, msg)
	assert.Equal(t, protowire.Number(fieldReqDelete), arm)
	assert.Empty(t, fields)
}

func TestMarshalElidesFalseBooleans(t *testing.T) {
	testlog.Start(t)

	msg, err := Build(script.GetSupportedDM{
		Paths:          []string{"Device."},
		FirstLevelOnly: true,
		ReturnParams:   true,
	}, script.MustMessageID("1"))
	require.NoError(t, err)

	_, _, fields := requestOf(t, msg)
	assert.Equal(t, uint64(1), only(t, fields, 2).varint)
	assert.Empty(t, all(fields, 3))
	assert.Empty(t, all(fields, 4))
	assert.Equal(t, uint64(1), only(t, fields, 5).varint)
}

func TestMarshalAddNestsObjectsAndSettings(t *testing.T) {
	testlog.Start(t)

	msg, err := Build(script.Add{
		AllowPartial: true,
		Objects: []script.ObjectSpec{
			{
				ObjPath: "Device.X.",
				Settings: []script.ParamSetting{
					{Param: "Enable", Value: "true", Required: true},
					{Param: "Alias", Value: "x"},
				},
			},
			{ObjPath: "Device.Y."},
		},
	}, script.MustMessageID("1"))
	require.NoError(t, err)

	_, _, add := requestOf(t, msg)
	assert.Equal(t, uint64(1), only(t, add, 1).varint)

	objs := all(add, 2)
	require.Len(t, objs, 2)

	first := decodeFields(t, objs[0].bytes)
	assert.Equal(t, "Device.X.", string(only(t, first, 1).bytes))
	settings := all(first, 2)
	require.Len(t, settings, 2)

	enable := decodeFields(t, settings[0].bytes)
	assert.Equal(t, "Enable", string(only(t, enable, 1).bytes))
	assert.Equal(t, "true", string(only(t, enable, 2).bytes))
	assert.Equal(t, uint64(1), only(t, enable, 3).varint)

	alias := decodeFields(t, settings[1].bytes)
	assert.Equal(t, []string{"Alias"}, strs(alias, 1))
	assert.Empty(t, all(alias, 3))

	second := decodeFields(t, objs[1].bytes)
	assert.Equal(t, "Device.Y.", string(only(t, second, 1).bytes))
	assert.Empty(t, all(second, 2))
}

func TestMarshalSetUsesUpdateObjs(t *testing.T) {
	testlog.Start(t)

	msg, err := Build(script.Set{Objects: []script.ObjectSpec{{
		ObjPath:  "Device.X.",
		Settings: []script.ParamSetting{{Param: "Enable", Value: "false"}},
	}}}, script.MustMessageID("1"))
	require.NoError(t, err)

	_, arm, set := requestOf(t, msg)
	assert.Equal(t, protowire.Number(fieldReqSet), arm)
	assert.Empty(t, all(set, 1))
	obj := decodeFields(t, only(t, set, 2).bytes)
	setting := decodeFields(t, only(t, obj, 2).bytes)
	assert.Equal(t, "false", string(only(t, setting, 2).bytes))
}

func TestMarshalOperateArgsInScriptOrder(t *testing.T) {
	testlog.Start(t)

	msg, err := Build(script.Operate{
		Command:    "Device.Reboot()",
		CommandKey: "ck",
		SendResp:   true,
		Args:       []script.Arg{{Key: "Z", Value: "1"}, {Key: "A", Value: "2"}},
	}, script.MustMessageID("1"))
	require.NoError(t, err)

	_, _, op := requestOf(t, msg)
	assert.Equal(t, "Device.Reboot()", string(only(t, op, 1).bytes))
	assert.Equal(t, "ck", string(only(t, op, 2).bytes))
	assert.Equal(t, uint64(1), only(t, op, 3).varint)

	var keys []string
	for _, entry := range all(op, 4) {
		keys = append(keys, strs(decodeFields(t, entry.bytes), 1)...)
	}
	assert.Equal(t, []string{"Z", "A"}, keys)
}

func TestValidate(t *testing.T) {
	testlog.Start(t)

	assert.ErrorIs(t, Validate(nil), ErrNilMessage)
	assert.ErrorIs(t, Validate(&Msg{Body: Body{Request: &GetRequest{}}}), ErrMissingMsgID)
	assert.ErrorIs(t, Validate(&Msg{Header: Header{MsgID: "1", MsgType: MsgTypeGet}}), ErrMissingRequest)
	assert.ErrorIs(t, Validate(&Msg{
		Header: Header{MsgID: "1", MsgType: MsgTypeSet},
		Body:   Body{Request: &GetRequest{}},
	}), ErrMsgTypeMismatch)

	_, err := Marshal(&Msg{Header: Header{MsgID: "1"}, Body: Body{Request: &AddRequest{}}})
	assert.ErrorIs(t, err, ErrMsgTypeMismatch)
}

func TestWrapRecord(t *testing.T) {
	testlog.Start(t)

	msg, err := Build(script.Get{Paths: []string{"Device."}}, script.MustMessageID("7"))
	require.NoError(t, err)

	rec, err := Wrap(msg, "proto::agent", "proto::controller")
	require.NoError(t, err)

	fields := decodeFields(t, rec)
	assert.Equal(t, RecordVersion, string(only(t, fields, fieldRecordVersion).bytes))
	assert.Equal(t, "proto::agent", string(only(t, fields, fieldRecordToID).bytes))
	assert.Equal(t, "proto::controller", string(only(t, fields, fieldRecordFromID).bytes))
	assert.Empty(t, all(fields, 4))

	nsc := only(t, fields, fieldRecordNoSessionContext).bytes
	payload := only(t, decodeFields(t, nsc), fieldNoSessionPayload).bytes
	want, err := Marshal(msg)
	require.NoError(t, err)
	assert.Equal(t, want, payload)
}

func TestWrapRecordRequiresToID(t *testing.T) {
	testlog.Start(t)

	_, err := MarshalRecord(Record{Payload: []byte{1}})
	assert.ErrorIs(t, err, ErrMissingToID)
}

func TestMsgTypeString(t *testing.T) {
	assert.Equal(t, "GET_SUPPORTED_PROTO", MsgTypeGetSupportedProto.String())
	assert.Equal(t, "UNKNOWN", MsgType(99).String())
}
