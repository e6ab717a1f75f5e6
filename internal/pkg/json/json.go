// Package json is the JSON codec used across the module.
package json

import "github.com/bytedance/sonic"

var api = sonic.Config{
	EscapeHTML:  false,
	SortMapKeys: true,
	UseInt64:    true,
	CopyString:  true, // decoded strings must not alias the input buffer
}.Froze()

func Marshal(v any) ([]byte, error) { return api.Marshal(v) }

func Unmarshal(data []byte, v any) error { return api.Unmarshal(data, v) }

func MarshalString(v any) (string, error) { return api.MarshalToString(v) }

func UnmarshalString(data string, v any) error { return api.UnmarshalFromString(data, v) }

// Valid reports whether data is a syntactically valid JSON document.
func Valid(data []byte) bool { return api.Valid(data) }
