package model

import (
	"encoding/json"
	"fmt"
)

// ValueKind は回答値の種別タグを表す。
// 実行時の型検査ではなく明示的なタグで分岐するための列挙。
type ValueKind int

const (
	// ValueAbsent は回答が存在しないことを表す。
	ValueAbsent ValueKind = iota
	// ValueScalar は文字列1件の回答を表す。
	ValueScalar
	// ValueList は文字列リストの回答を表す（multi_select）。
	ValueList
	// ValueAttachments は添付ファイルリストの回答を表す。
	ValueAttachments
	// ValueInvalid はサポート外のJSON型で渡された回答を表す。
	// バリデーションで型エラーとして報告される。
	ValueInvalid
)

// Attachment は添付ファイル回答の1要素を表す。
// URLで取得可能なリソースを指す。
type Attachment struct {
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
}

// Value は質問への回答値を表すタグ付きバリアント。
// scalar（文字列）、list（文字列配列）、attachments（添付配列）のいずれか。
type Value struct {
	Kind        ValueKind
	Scalar      string
	List        []string
	Attachments []Attachment
}

// NewScalar は文字列回答のValueを生成する。
func NewScalar(s string) Value {
	return Value{Kind: ValueScalar, Scalar: s}
}

// NewList は文字列リスト回答のValueを生成する。
func NewList(items ...string) Value {
	return Value{Kind: ValueList, List: items}
}

// NewAttachments は添付リスト回答のValueを生成する。
func NewAttachments(atts ...Attachment) Value {
	return Value{Kind: ValueAttachments, Attachments: atts}
}

// IsAbsent は回答が存在しない（null含む）かどうかを返す。
func (v Value) IsAbsent() bool {
	return v.Kind == ValueAbsent
}

// IsEmpty は回答が空であるか（空文字列・空リスト・不在）を返す。
func (v Value) IsEmpty() bool {
	switch v.Kind {
	case ValueAbsent:
		return true
	case ValueScalar:
		return v.Scalar == ""
	case ValueList:
		return len(v.List) == 0
	case ValueAttachments:
		return len(v.Attachments) == 0
	}
	return false
}

// UnmarshalJSON はJSONの形から種別タグを決定してデコードする。
//   - 文字列          → ValueScalar
//   - 文字列の配列    → ValueList
//   - オブジェクト配列 → ValueAttachments
//   - null            → ValueAbsent
//   - 上記以外        → ValueInvalid（エラーにはしない）
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Value{Kind: ValueAbsent}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = NewScalar(s)
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err == nil {
		if len(raw) == 0 {
			*v = Value{Kind: ValueList, List: []string{}}
			return nil
		}
		// 先頭要素の形で配列全体の種別を決める
		var first string
		if err := json.Unmarshal(raw[0], &first); err == nil {
			var list []string
			if err := json.Unmarshal(data, &list); err != nil {
				*v = Value{Kind: ValueInvalid}
				return nil
			}
			*v = Value{Kind: ValueList, List: list}
			return nil
		}
		var atts []Attachment
		if err := json.Unmarshal(data, &atts); err == nil {
			*v = Value{Kind: ValueAttachments, Attachments: atts}
			return nil
		}
	}

	*v = Value{Kind: ValueInvalid}
	return nil
}

// MarshalJSON は種別タグに応じた素のJSON表現を返す。
// Airtableへ送るフィールド値・DBに保存する回答マップの両方で使用される。
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValueAbsent:
		return []byte("null"), nil
	case ValueScalar:
		return json.Marshal(v.Scalar)
	case ValueList:
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	case ValueAttachments:
		if v.Attachments == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.Attachments)
	default:
		return nil, fmt.Errorf("cannot marshal invalid value")
	}
}

// AnswerMap は質問キーから回答値へのマップを表す。
type AnswerMap map[string]Value
