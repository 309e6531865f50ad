package usp

import (
	"fmt"

	"github.com/danmuck/uspctl/internal/script"
)

// Build turns a parsed directive into a message stamped with id. The
// returned message owns copies of every string slice in d, so later edits
// to the directive never leak into an already queued message.
func Build(d script.Directive, id script.MessageID) (*Msg, error) {
	if d == nil {
		return nil, ErrNilDirective
	}

	msg := &Msg{Header: Header{MsgID: id.String()}}
	switch v := d.(type) {
	case script.Get:
		msg.Header.MsgType = MsgTypeGet
		msg.Body.Request = &GetRequest{ParamPaths: cloneStrings(v.Paths)}
	case script.GetInstances:
		msg.Header.MsgType = MsgTypeGetInstances
		msg.Body.Request = &GetInstancesRequest{
			ObjPaths:       cloneStrings(v.Paths),
			FirstLevelOnly: v.FirstLevelOnly,
		}
	case script.GetSupportedDM:
		msg.Header.MsgType = MsgTypeGetSupportedDM
		msg.Body.Request = &GetSupportedDMRequest{
			ObjPaths:       cloneStrings(v.Paths),
			FirstLevelOnly: v.FirstLevelOnly,
			ReturnCommands: v.ReturnCommands,
			ReturnEvents:   v.ReturnEvents,
			ReturnParams:   v.ReturnParams,
		}
	case script.Add:
		msg.Header.MsgType = MsgTypeAdd
		req := &AddRequest{AllowPartial: v.AllowPartial}
		for _, obj := range v.Objects {
			create := CreateObject{ObjPath: obj.ObjPath}
			for _, s := range obj.Settings {
				create.ParamSettings = append(create.ParamSettings, CreateParamSetting(s))
			}
			req.CreateObjs = append(req.CreateObjs, create)
		}
		msg.Body.Request = req
	case script.Set:
		msg.Header.MsgType = MsgTypeSet
		req := &SetRequest{AllowPartial: v.AllowPartial}
		for _, obj := range v.Objects {
			update := UpdateObject{ObjPath: obj.ObjPath}
			for _, s := range obj.Settings {
				update.ParamSettings = append(update.ParamSettings, UpdateParamSetting(s))
			}
			req.UpdateObjs = append(req.UpdateObjs, update)
		}
		msg.Body.Request = req
	case script.Delete:
		msg.Header.MsgType = MsgTypeDelete
		msg.Body.Request = &DeleteRequest{
			AllowPartial: v.AllowPartial,
			ObjPaths:     cloneStrings(v.Paths),
		}
	case script.Operate:
		msg.Header.MsgType = MsgTypeOperate
		req := &OperateRequest{
			Command:    v.Command,
			CommandKey: v.CommandKey,
			SendResp:   v.SendResp,
		}
		for _, arg := range v.Args {
			req.InputArgs = append(req.InputArgs, InputArg(arg))
		}
		msg.Body.Request = req
	case script.GetSupportedProtocol:
		msg.Header.MsgType = MsgTypeGetSupportedProto
		msg.Body.Request = &GetSupportedProtocolRequest{
			ControllerSupportedProtocolVersions: v.Versions,
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDirective, d.Kind())
	}
	return msg, nil
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
