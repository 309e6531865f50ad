package script

// MaxEntries bounds every repeated field of a directive: paths, objects,
// settings per object, and operate arguments.
const MaxEntries = 10

// Kind names a directive by its msg_type value.
type Kind string

const (
	KindGet                  Kind = "Get"
	KindGetInstances         Kind = "GetInstances"
	KindGetSupportedDM       Kind = "GetSupportedDM"
	KindAdd                  Kind = "Add"
	KindSet                  Kind = "Set"
	KindDelete               Kind = "Delete"
	KindOperate              Kind = "Operate"
	KindGetSupportedProtocol Kind = "GetSupportedProtocol"
)

// Kinds lists every supported directive in script order of documentation.
var Kinds = []Kind{
	KindGet,
	KindGetInstances,
	KindGetSupportedDM,
	KindAdd,
	KindSet,
	KindDelete,
	KindOperate,
	KindGetSupportedProtocol,
}

// Known reports whether k is one of the supported directives.
func (k Kind) Known() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Directive is the typed form of one script line.
type Directive interface {
	Kind() Kind
}

type Get struct {
	Paths []string
}

type GetInstances struct {
	Paths          []string
	FirstLevelOnly bool
}

type GetSupportedDM struct {
	Paths          []string
	FirstLevelOnly bool
	ReturnCommands bool
	ReturnEvents   bool
	ReturnParams   bool
}

// ParamSetting is one parameter assignment inside an Add or Set object.
type ParamSetting struct {
	Param    string
	Value    string
	Required bool
}

// ObjectSpec is one create_objs or update_objs group.
type ObjectSpec struct {
	ObjPath  string
	Settings []ParamSetting
}

type Add struct {
	AllowPartial bool
	Objects      []ObjectSpec
}

type Set struct {
	AllowPartial bool
	Objects      []ObjectSpec
}

type Delete struct {
	AllowPartial bool
	Paths        []string
}

// Arg is one Operate input argument, kept in script order.
type Arg struct {
	Key   string
	Value string
}

type Operate struct {
	Command    string
	CommandKey string
	Args       []Arg
	SendResp   bool
}

type GetSupportedProtocol struct {
	Versions string
}

func (Get) Kind() Kind                  { return KindGet }
func (GetInstances) Kind() Kind         { return KindGetInstances }
func (GetSupportedDM) Kind() Kind       { return KindGetSupportedDM }
func (Add) Kind() Kind                  { return KindAdd }
func (Set) Kind() Kind                  { return KindSet }
func (Delete) Kind() Kind               { return KindDelete }
func (Operate) Kind() Kind              { return KindOperate }
func (GetSupportedProtocol) Kind() Kind { return KindGetSupportedProtocol }
