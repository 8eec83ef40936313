package model

import "time"

// QuestionType は質問のフィールド種別を表す。
type QuestionType string

const (
	// QuestionShortText は1行テキストの質問種別。
	QuestionShortText QuestionType = "short_text"
	// QuestionLongText は複数行テキストの質問種別。
	QuestionLongText QuestionType = "long_text"
	// QuestionSingleSelect は単一選択の質問種別。
	QuestionSingleSelect QuestionType = "single_select"
	// QuestionMultiSelect は複数選択の質問種別。
	QuestionMultiSelect QuestionType = "multi_select"
	// QuestionAttachment は添付ファイルの質問種別。
	QuestionAttachment QuestionType = "attachment"
)

// airtableTypeMap はAirtable APIのフィールド型から内部の質問種別への変換表。
var airtableTypeMap = map[string]QuestionType{
	"singleLineText":      QuestionShortText,
	"multilineText":       QuestionLongText,
	"singleSelect":        QuestionSingleSelect,
	"multipleSelects":     QuestionMultiSelect,
	"multipleAttachments": QuestionAttachment,
}

// NormalizeFieldType はAirtableのフィールド型を内部の質問種別に変換する。
// 既に内部種別の場合はそのまま返す。サポート外の型はfalseを返す。
func NormalizeFieldType(fieldType string) (QuestionType, bool) {
	switch QuestionType(fieldType) {
	case QuestionShortText, QuestionLongText, QuestionSingleSelect,
		QuestionMultiSelect, QuestionAttachment:
		return QuestionType(fieldType), true
	}
	qt, ok := airtableTypeMap[fieldType]
	return qt, ok
}

// LogicOperator は条件の結合方法を表す。
type LogicOperator string

const (
	// LogicAnd は全条件の成立を要求する結合。
	LogicAnd LogicOperator = "AND"
	// LogicOr はいずれかの条件の成立を要求する結合。
	LogicOr LogicOperator = "OR"
)

// ConditionOperator は条件の比較演算子を表す。
type ConditionOperator string

const (
	// OperatorEquals は等価比較の演算子。
	OperatorEquals ConditionOperator = "equals"
	// OperatorNotEquals は非等価比較の演算子。
	OperatorNotEquals ConditionOperator = "notEquals"
	// OperatorContains は部分一致比較の演算子。
	OperatorContains ConditionOperator = "contains"
)

// Condition は表示条件の1項目を表す。
// 他の質問の回答値と比較値をoperatorで比較する。
type Condition struct {
	QuestionKey string            `json:"questionKey"`
	Operator    ConditionOperator `json:"operator"`
	Value       Value             `json:"value"`
}

// ConditionalRules は質問の表示条件セットを表す。
// nilの場合は常に表示される。
type ConditionalRules struct {
	Logic      LogicOperator `json:"logic"`
	Conditions []Condition   `json:"conditions"`
}

// Question はフォーム内の1つの質問を表す。
// KeyはForm内で一意で、AirtableFieldIDは同期先フィールドを指す。
type Question struct {
	Key              string            `json:"questionKey"`
	AirtableFieldID  string            `json:"airtableFieldId"`
	Label            string            `json:"label"`
	Type             QuestionType      `json:"type"`
	Required         bool              `json:"required"`
	ConditionalRules *ConditionalRules `json:"conditionalRules,omitempty"`
	Choices          []string          `json:"choices,omitempty"`
}

// Form はAirtableのベース・テーブルに紐付いたフォーム定義を表す。
// オペレーターが作成し、回答受付パイプラインからは読み取り専用。
type Form struct {
	ID              string
	OwnerID         string
	AirtableBaseID  string
	AirtableTableID string
	Title           string
	Questions       []Question
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// QuestionByKey は指定キーの質問を返す。見つからない場合はnilを返す。
func (f *Form) QuestionByKey(key string) *Question {
	for i := range f.Questions {
		if f.Questions[i].Key == key {
			return &f.Questions[i]
		}
	}
	return nil
}
