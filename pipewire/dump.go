// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pipewire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/momentics/hioload-pw/api"
)

// Permission bits carried on registry entries.
const (
	PermR uint32 = 0o400
	PermW uint32 = 0o200
	PermX uint32 = 0o100
	PermM uint32 = 0o010
)

type dumpObject struct {
	ID          uint32          `json:"id"`
	Type        string          `json:"type"`
	Version     uint32          `json:"version"`
	Permissions []string        `json:"permissions"`
	Props       map[string]any  `json:"props"`
	Info        json.RawMessage `json:"info"`
}

type dumpInfo struct {
	Props map[string]any `json:"props"`
}

var jsonNull = []byte("null")

// removed reports a removal record: pw-dump prints the id with a null info and
// no type. Objects without an info key (metadata) are still live.
func (o *dumpObject) removed() bool {
	if bytes.Equal(bytes.TrimSpace(o.Info), jsonNull) {
		return true
	}
	return o.Type == "" && len(o.Info) == 0 && o.Props == nil
}

func (o *dumpObject) props() (map[string]string, error) {
	if len(o.Info) == 0 {
		return stringProps(o.Props), nil
	}
	var info dumpInfo
	if err := json.Unmarshal(o.Info, &info); err != nil {
		return nil, fmt.Errorf("pipewire: object %d info: %w", o.ID, err)
	}
	if info.Props == nil {
		return stringProps(o.Props), nil
	}
	return stringProps(info.Props), nil
}

// dumpParser turns the stream of JSON arrays printed by pw-dump into registry
// callbacks. Objects already announced are ignored on update.
//
// Input is scanned once for the end of each top-level array; only complete
// arrays are decoded.
type dumpParser struct {
	buf    []byte
	scan   int // bytes of buf already scanned
	depth  int
	inStr  bool
	esc    bool
	known  map[uint32]struct{}
	events api.RegistryEvents
}

func newDumpParser(events api.RegistryEvents) *dumpParser {
	return &dumpParser{known: make(map[uint32]struct{}), events: events}
}

// Feed appends data and applies every complete array. Incomplete input is kept
// for the next call.
func (p *dumpParser) Feed(data []byte) error {
	p.buf = append(p.buf, data...)
	for {
		if p.scan == 0 {
			p.buf = bytes.TrimLeft(p.buf, " \t\r\n")
			if len(p.buf) == 0 {
				return nil
			}
			if p.buf[0] != '[' {
				return fmt.Errorf("pipewire: parse pw-dump output: unexpected %q", p.buf[0])
			}
		}
		end := p.next()
		if end < 0 {
			return nil
		}
		var batch []dumpObject
		if err := json.Unmarshal(p.buf[:end], &batch); err != nil {
			return fmt.Errorf("pipewire: parse pw-dump output: %w", err)
		}
		p.buf = p.buf[end:]
		if err := p.apply(batch); err != nil {
			return err
		}
	}
}

// next continues scanning for the end of the current top-level value and
// returns its exclusive end offset, or -1 if more input is needed.
func (p *dumpParser) next() int {
	for i := p.scan; i < len(p.buf); i++ {
		c := p.buf[i]
		switch {
		case p.inStr:
			switch {
			case p.esc:
				p.esc = false
			case c == '\\':
				p.esc = true
			case c == '"':
				p.inStr = false
			}
		case c == '"':
			p.inStr = true
		case c == '[' || c == '{':
			p.depth++
		case c == ']' || c == '}':
			p.depth--
			if p.depth == 0 {
				p.scan = 0
				return i + 1
			}
		}
	}
	p.scan = len(p.buf)
	return -1
}

// Pending returns the number of buffered bytes not yet parsed.
func (p *dumpParser) Pending() int { return len(p.buf) }

func (p *dumpParser) apply(batch []dumpObject) error {
	for i := range batch {
		obj := &batch[i]
		_, seen := p.known[obj.ID]
		if obj.removed() {
			if seen {
				delete(p.known, obj.ID)
				if p.events.GlobalRemove != nil {
					p.events.GlobalRemove(obj.ID)
				}
			}
			continue
		}
		if seen {
			continue
		}
		props, err := obj.props()
		if err != nil {
			return err
		}
		p.known[obj.ID] = struct{}{}
		if p.events.Global != nil {
			p.events.Global(obj.ID, permissions(obj.Permissions), obj.Type, obj.Version, props)
		}
	}
	return nil
}

func permissions(flags []string) uint32 {
	var mask uint32
	for _, f := range flags {
		switch f {
		case "r":
			mask |= PermR
		case "w":
			mask |= PermW
		case "x":
			mask |= PermX
		case "m":
			mask |= PermM
		}
	}
	return mask
}

func stringProps(in map[string]any) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case string:
			out[k] = t
		case float64:
			out[k] = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(t)
		case nil:
			out[k] = ""
		default:
			b, _ := json.Marshal(t)
			out[k] = string(b)
		}
	}
	return out
}
