// Package validation は回答のフィールド種別バリデーションを提供する。
// 純粋関数のみで構成され、入力を変更しない。
package validation

import (
	"fmt"
	"strings"

	"github.com/hitoshi/formbridge/internal/model"
	"github.com/hitoshi/formbridge/internal/rules"
)

// Validate は質問定義の全件に対して回答を検証し、見つかった全フィールドエラーを返す。
// fail-fastせず1パスで全エラーを収集する。エラーなしの場合はnilを返す。
// 表示条件により非表示の質問は必須であっても検証対象外となる。
func Validate(questions []model.Question, answers model.AnswerMap) []model.FieldError {
	var errs []model.FieldError

	for _, q := range questions {
		// 非表示の質問は回答不在が正当なのでスキップする
		if !rules.IsVisible(q.ConditionalRules, answers) {
			continue
		}

		value := answers[q.Key]
		if msg := validateField(q, value); msg != "" {
			errs = append(errs, model.FieldError{Field: q.Key, Message: msg})
		}
	}

	return errs
}

// validateField は1つの質問に対する回答を検証し、エラーメッセージを返す。
// 正当な場合は空文字列を返す。
func validateField(q model.Question, value model.Value) string {
	label := q.Label
	if label == "" {
		label = q.Key
	}

	if value.IsEmpty() {
		if q.Required {
			return fmt.Sprintf("%s は必須項目です。", label)
		}
		// 任意項目の空回答は種別検証を行わない
		return ""
	}

	switch q.Type {
	case model.QuestionShortText, model.QuestionLongText:
		if value.Kind != model.ValueScalar {
			return fmt.Sprintf("%s は文字列で入力してください。", label)
		}
		return ""

	case model.QuestionSingleSelect:
		if value.Kind != model.ValueScalar {
			return fmt.Sprintf("%s は文字列で入力してください。", label)
		}
		if len(q.Choices) > 0 && !containsString(q.Choices, value.Scalar) {
			return fmt.Sprintf("%s は次のいずれかを指定してください: %s", label, strings.Join(q.Choices, ", "))
		}
		return ""

	case model.QuestionMultiSelect:
		if value.Kind != model.ValueList {
			return fmt.Sprintf("%s はリストで指定してください。", label)
		}
		if len(q.Choices) > 0 {
			var invalid []string
			for _, item := range value.List {
				if !containsString(q.Choices, item) {
					invalid = append(invalid, item)
				}
			}
			if len(invalid) > 0 {
				return fmt.Sprintf("%s に無効な選択肢が含まれています: %s", label, strings.Join(invalid, ", "))
			}
		}
		return ""

	case model.QuestionAttachment:
		switch value.Kind {
		case model.ValueAttachments:
			var missing []string
			for i, att := range value.Attachments {
				if att.URL == "" {
					missing = append(missing, fmt.Sprintf("%d件目", i+1))
				}
			}
			if len(missing) > 0 {
				return fmt.Sprintf("%s にURLのない添付が含まれています: %s", label, strings.Join(missing, ", "))
			}
			return ""
		case model.ValueList:
			// 文字列の配列はURLを持たない添付として扱う
			return fmt.Sprintf("%s の添付にはそれぞれurlが必要です。", label)
		default:
			return fmt.Sprintf("%s は添付のリストで指定してください。", label)
		}

	default:
		return fmt.Sprintf("サポート外のフィールド種別です: %s", q.Type)
	}
}

// containsString はスライスへの完全一致所属を判定する。
func containsString(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
