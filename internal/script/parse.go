package script

import "errors"

var ErrBlankLine = errors.New("script: blank line")

const (
	keyMsgType = "msg_type"

	starterCreate = "create_objs"
	starterUpdate = "update_objs"
)

// ParseLine parses one directive line. On CapacityError the returned
// directive holds every entry accepted before the bound was hit.
func ParseLine(line string) (Directive, []Diagnostic, error) {
	lexed := Lex(line)
	diags := lexed.Diagnostics
	if len(lexed.Tokens) == 0 {
		return nil, diags, ErrBlankLine
	}

	head := lexed.Tokens[0]
	if head.Kind != TokenPair || head.Key != keyMsgType {
		return nil, diags, &UnknownDirectiveError{FirstKey: firstKeyName(head)}
	}
	kind := Kind(head.Value)
	if !kind.Known() {
		return nil, diags, &UnknownDirectiveError{Name: head.Value}
	}

	r := &reducer{kind: kind, diags: diags}
	d, err := r.reduce(lexed.Tokens[1:])
	return d, r.diags, err
}

func firstKeyName(tok Token) string {
	if tok.Key == "" {
		return "{" + tok.Kind.String() + "}"
	}
	return tok.Key
}

type reducer struct {
	kind  Kind
	diags []Diagnostic
}

func (r *reducer) note(tok Token, reason string) {
	r.diags = append(r.diags, Diagnostic{Pos: tok.Pos, Key: tok.Key, Reason: reason})
}

func (r *reducer) reduce(tokens []Token) (Directive, error) {
	switch r.kind {
	case KindGet:
		return r.get(tokens)
	case KindGetInstances:
		return r.getInstances(tokens)
	case KindGetSupportedDM:
		return r.getSupportedDM(tokens)
	case KindAdd:
		objs, partial, err := r.objects(tokens, starterCreate)
		return Add{AllowPartial: partial, Objects: objs}, err
	case KindSet:
		objs, partial, err := r.objects(tokens, starterUpdate)
		return Set{AllowPartial: partial, Objects: objs}, err
	case KindDelete:
		return r.delete(tokens)
	case KindOperate:
		return r.operate(tokens)
	case KindGetSupportedProtocol:
		return r.getSupportedProtocol(tokens)
	}
	return nil, &UnknownDirectiveError{Name: string(r.kind)}
}

// scalarPairs yields the pairs of a directive with no nested groups, noting
// any braces as unrecognized.
func (r *reducer) scalarPairs(tokens []Token, fn func(Token) error) error {
	for _, tok := range tokens {
		switch tok.Kind {
		case TokenOpen:
			r.note(tok, reasonUnknownGroup)
		case TokenClose:
		case TokenPair:
			if err := fn(tok); err != nil {
				return err
			}
		}
	}
	return nil
}

func appendBounded[T any](list []T, v T, kind Kind, field string) ([]T, error) {
	if len(list) >= MaxEntries {
		return list, &CapacityError{Kind: kind, Field: field, Bound: MaxEntries}
	}
	return append(list, v), nil
}

func isTrue(v string) bool {
	return v == "true"
}

func (r *reducer) get(tokens []Token) (Directive, error) {
	var d Get
	err := r.scalarPairs(tokens, func(tok Token) error {
		if tok.Key != "param_paths" {
			r.note(tok, reasonUnrecognizedKey)
			return nil
		}
		var err error
		d.Paths, err = appendBounded(d.Paths, tok.Value, r.kind, tok.Key)
		return err
	})
	return d, err
}

func (r *reducer) getInstances(tokens []Token) (Directive, error) {
	var d GetInstances
	err := r.scalarPairs(tokens, func(tok Token) error {
		var err error
		switch tok.Key {
		case "obj_paths":
			d.Paths, err = appendBounded(d.Paths, tok.Value, r.kind, tok.Key)
		case "first_level_only":
			d.FirstLevelOnly = isTrue(tok.Value)
		default:
			r.note(tok, reasonUnrecognizedKey)
		}
		return err
	})
	return d, err
}

func (r *reducer) getSupportedDM(tokens []Token) (Directive, error) {
	var d GetSupportedDM
	err := r.scalarPairs(tokens, func(tok Token) error {
		var err error
		switch tok.Key {
		case "obj_paths":
			d.Paths, err = appendBounded(d.Paths, tok.Value, r.kind, tok.Key)
		case "first_level_only":
			d.FirstLevelOnly = isTrue(tok.Value)
		case "return_commands":
			d.ReturnCommands = isTrue(tok.Value)
		case "return_events":
			d.ReturnEvents = isTrue(tok.Value)
		case "return_params":
			d.ReturnParams = isTrue(tok.Value)
		default:
			r.note(tok, reasonUnrecognizedKey)
		}
		return err
	})
	return d, err
}

func (r *reducer) delete(tokens []Token) (Directive, error) {
	var d Delete
	err := r.scalarPairs(tokens, func(tok Token) error {
		var err error
		switch tok.Key {
		case "obj_paths":
			d.Paths, err = appendBounded(d.Paths, tok.Value, r.kind, tok.Key)
		case "allow_partial":
			d.AllowPartial = isTrue(tok.Value)
		default:
			r.note(tok, reasonUnrecognizedKey)
		}
		return err
	})
	return d, err
}

func (r *reducer) getSupportedProtocol(tokens []Token) (Directive, error) {
	var d GetSupportedProtocol
	err := r.scalarPairs(tokens, func(tok Token) error {
		if tok.Key != "controller_supported_protocol_versions" {
			r.note(tok, reasonUnrecognizedKey)
			return nil
		}
		d.Versions = tok.Value
		return nil
	})
	return d, err
}

// operate pairs each param with the value that follows it.
func (r *reducer) operate(tokens []Token) (Directive, error) {
	var d Operate
	var pending *Token
	err := r.scalarPairs(tokens, func(tok Token) error {
		switch tok.Key {
		case "command":
			d.Command = tok.Value
		case "command_key":
			d.CommandKey = tok.Value
		case "send_resp":
			d.SendResp = isTrue(tok.Value)
		case "param":
			if pending != nil {
				r.note(*pending, reasonOrphanParam)
			}
			t := tok
			pending = &t
		case "value":
			if pending == nil {
				r.note(tok, reasonOrphanValue)
				return nil
			}
			var err error
			d.Args, err = appendBounded(d.Args, Arg{Key: pending.Value, Value: tok.Value}, r.kind, "input_args")
			pending = nil
			return err
		default:
			r.note(tok, reasonUnrecognizedKey)
		}
		return nil
	})
	if err == nil && pending != nil {
		r.note(*pending, reasonOrphanParam)
	}
	return d, err
}

type groupKind int

const (
	groupIgnored groupKind = iota
	groupObject
	groupSetting
)

// objectState accumulates Add/Set objects. Each starter group is one object;
// settings sit directly in it or in nested groups, one setting per group.
type objectState struct {
	r        *reducer
	field    string
	objects  []ObjectSpec
	stack    []groupKind
	current  int
	setting  ParamSetting
	touched  bool
	hasParam bool
}

func (r *reducer) objects(tokens []Token, starter string) ([]ObjectSpec, bool, error) {
	st := &objectState{r: r, field: starter, current: -1}
	allowPartial := false
	for _, tok := range tokens {
		var err error
		switch tok.Kind {
		case TokenOpen:
			err = st.open(tok)
		case TokenClose:
			err = st.close(tok)
		case TokenPair:
			if tok.Key == "allow_partial" {
				allowPartial = isTrue(tok.Value)
				continue
			}
			err = st.pair(tok)
		}
		if err != nil {
			return st.objects, allowPartial, err
		}
	}
	if len(st.stack) > 0 {
		r.diags = append(r.diags, Diagnostic{Key: st.field, Reason: reasonUnclosedGroup})
	}
	if st.current >= 0 {
		if err := st.finishSetting(); err != nil {
			return st.objects, allowPartial, err
		}
	}
	return st.objects, allowPartial, nil
}

func (st *objectState) top() groupKind {
	if len(st.stack) == 0 {
		return groupIgnored
	}
	return st.stack[len(st.stack)-1]
}

func (st *objectState) open(tok Token) error {
	switch {
	case tok.Key == st.field && len(st.stack) == 0:
		var err error
		st.objects, err = appendBounded(st.objects, ObjectSpec{}, st.r.kind, st.field)
		if err != nil {
			return err
		}
		st.current = len(st.objects) - 1
		st.stack = append(st.stack, groupObject)
	case st.current >= 0 && st.top() != groupIgnored:
		if err := st.finishSetting(); err != nil {
			return err
		}
		st.stack = append(st.stack, groupSetting)
	default:
		st.r.note(tok, reasonUnknownGroup)
		st.stack = append(st.stack, groupIgnored)
	}
	return nil
}

func (st *objectState) close(tok Token) error {
	if len(st.stack) == 0 {
		st.r.note(tok, reasonUnbalancedClose)
		return nil
	}
	kind := st.top()
	st.stack = st.stack[:len(st.stack)-1]
	switch kind {
	case groupSetting:
		return st.finishSetting()
	case groupObject:
		err := st.finishSetting()
		st.current = -1
		return err
	}
	return nil
}

func (st *objectState) pair(tok Token) error {
	if st.current < 0 || st.top() == groupIgnored {
		st.r.note(tok, reasonUnrecognizedKey)
		return nil
	}
	switch tok.Key {
	case "obj_path":
		st.objects[st.current].ObjPath = tok.Value
	case "param":
		if st.hasParam {
			if err := st.finishSetting(); err != nil {
				return err
			}
		}
		st.setting.Param = tok.Value
		st.hasParam = true
		st.touched = true
	case "value":
		st.setting.Value = tok.Value
		st.touched = true
	case "required":
		st.setting.Required = isTrue(tok.Value)
		st.touched = true
	default:
		st.r.note(tok, reasonUnrecognizedKey)
	}
	return nil
}

func (st *objectState) finishSetting() error {
	if !st.touched {
		return nil
	}
	obj := &st.objects[st.current]
	var err error
	obj.Settings, err = appendBounded(obj.Settings, st.setting, st.r.kind, "param_settings")
	st.setting = ParamSetting{}
	st.touched = false
	st.hasParam = false
	return err
}
