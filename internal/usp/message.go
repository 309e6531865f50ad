package usp

// MsgType mirrors Header.MsgType in usp-msg-1-2.proto.
type MsgType int32

const (
	MsgTypeError                 MsgType = 0
	MsgTypeGet                   MsgType = 1
	MsgTypeGetResp               MsgType = 2
	MsgTypeNotify                MsgType = 3
	MsgTypeSet                   MsgType = 4
	MsgTypeSetResp               MsgType = 5
	MsgTypeOperate               MsgType = 6
	MsgTypeOperateResp           MsgType = 7
	MsgTypeAdd                   MsgType = 8
	MsgTypeAddResp               MsgType = 9
	MsgTypeDelete                MsgType = 10
	MsgTypeDeleteResp            MsgType = 11
	MsgTypeGetSupportedDM        MsgType = 12
	MsgTypeGetSupportedDMResp    MsgType = 13
	MsgTypeGetInstances          MsgType = 14
	MsgTypeGetInstancesResp      MsgType = 15
	MsgTypeNotifyResp            MsgType = 16
	MsgTypeGetSupportedProto     MsgType = 17
	MsgTypeGetSupportedProtoResp MsgType = 18
)

var msgTypeNames = map[MsgType]string{
	MsgTypeError:                 "ERROR",
	MsgTypeGet:                   "GET",
	MsgTypeGetResp:               "GET_RESP",
	MsgTypeNotify:                "NOTIFY",
	MsgTypeSet:                   "SET",
	MsgTypeSetResp:               "SET_RESP",
	MsgTypeOperate:               "OPERATE",
	MsgTypeOperateResp:           "OPERATE_RESP",
	MsgTypeAdd:                   "ADD",
	MsgTypeAddResp:               "ADD_RESP",
	MsgTypeDelete:                "DELETE",
	MsgTypeDeleteResp:            "DELETE_RESP",
	MsgTypeGetSupportedDM:        "GET_SUPPORTED_DM",
	MsgTypeGetSupportedDMResp:    "GET_SUPPORTED_DM_RESP",
	MsgTypeGetInstances:          "GET_INSTANCES",
	MsgTypeGetInstancesResp:      "GET_INSTANCES_RESP",
	MsgTypeNotifyResp:            "NOTIFY_RESP",
	MsgTypeGetSupportedProto:     "GET_SUPPORTED_PROTO",
	MsgTypeGetSupportedProtoResp: "GET_SUPPORTED_PROTO_RESP",
}

func (t MsgType) String() string {
	if name, ok := msgTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// Header is the USP message header.
type Header struct {
	MsgID   string
	MsgType MsgType
}

// Msg is one USP message: a header and a request body.
type Msg struct {
	Header Header
	Body   Body
}

// Body carries exactly one request. Only requests are built by a controller
// script, so the response and error arms of the wire union are not modelled.
type Body struct {
	Request Request
}

// Request is the req_type union. Each implementation reports its oneof
// field number in the Request message.
type Request interface {
	requestField() int32
}

type GetRequest struct {
	ParamPaths []string
	MaxDepth   uint32
}

type GetSupportedDMRequest struct {
	ObjPaths       []string
	FirstLevelOnly bool
	ReturnCommands bool
	ReturnEvents   bool
	ReturnParams   bool
}

type GetInstancesRequest struct {
	ObjPaths       []string
	FirstLevelOnly bool
}

type SetRequest struct {
	AllowPartial bool
	UpdateObjs   []UpdateObject
}

type UpdateObject struct {
	ObjPath       string
	ParamSettings []UpdateParamSetting
}

type UpdateParamSetting struct {
	Param    string
	Value    string
	Required bool
}

type AddRequest struct {
	AllowPartial bool
	CreateObjs   []CreateObject
}

type CreateObject struct {
	ObjPath       string
	ParamSettings []CreateParamSetting
}

type CreateParamSetting struct {
	Param    string
	Value    string
	Required bool
}

type DeleteRequest struct {
	AllowPartial bool
	ObjPaths     []string
}

type OperateRequest struct {
	Command    string
	CommandKey string
	SendResp   bool
	// InputArgs is the input_args map, kept as ordered entries so the
	// encoded order matches the script.
	InputArgs []InputArg
}

type InputArg struct {
	Key   string
	Value string
}

type GetSupportedProtocolRequest struct {
	ControllerSupportedProtocolVersions string
}

// Request.req_type field numbers.
const (
	fieldReqGet                  = 1
	fieldReqGetSupportedDM       = 2
	fieldReqGetInstances         = 3
	fieldReqSet                  = 4
	fieldReqAdd                  = 5
	fieldReqDelete               = 6
	fieldReqOperate              = 7
	fieldReqGetSupportedProtocol = 9
)

func (*GetRequest) requestField() int32                  { return fieldReqGet }
func (*GetSupportedDMRequest) requestField() int32       { return fieldReqGetSupportedDM }
func (*GetInstancesRequest) requestField() int32         { return fieldReqGetInstances }
func (*SetRequest) requestField() int32                  { return fieldReqSet }
func (*AddRequest) requestField() int32                  { return fieldReqAdd }
func (*DeleteRequest) requestField() int32               { return fieldReqDelete }
func (*OperateRequest) requestField() int32              { return fieldReqOperate }
func (*GetSupportedProtocolRequest) requestField() int32 { return fieldReqGetSupportedProtocol }
