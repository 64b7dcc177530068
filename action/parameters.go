package action

import (
	"bytes"
	"encoding/json"
	"sort"

	orderedmap "github.com/wk8/go-ordered-map"
)

// Parameters is a string keyed mapping that marshals to a json object in insertion order
type Parameters struct {
	values *orderedmap.OrderedMap
}

func NewParameters() *Parameters {
	return &Parameters{
		values: orderedmap.New(),
	}
}

// ParametersFrom copies m with its keys in sorted order
func ParametersFrom(m map[string]interface{}) *Parameters {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	p := NewParameters()
	for _, key := range keys {
		p.Set(key, m[key])
	}
	return p
}

func (p *Parameters) Set(key string, value interface{}) *Parameters {
	p.values.Set(key, value)
	return p
}

func (p *Parameters) Get(key string) (interface{}, bool) {
	if p == nil || p.values == nil {
		return nil, false
	}
	return p.values.Get(key)
}

func (p *Parameters) Len() int {
	if p == nil || p.values == nil {
		return 0
	}
	return p.values.Len()
}

func (p *Parameters) Keys() []string {
	keys := make([]string, 0, p.Len())
	if p.Len() == 0 {
		return keys
	}
	for pair := p.values.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key.(string))
	}
	return keys
}

func (p *Parameters) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	if p.Len() > 0 {
		for pair := p.values.Oldest(); pair != nil; pair = pair.Next() {
			if buf.Len() > 1 {
				buf.WriteByte(',')
			}

			key, err := json.Marshal(pair.Key)
			if err != nil {
				return nil, err
			}
			value, err := json.Marshal(pair.Value)
			if err != nil {
				return nil, err
			}

			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(value)
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}
