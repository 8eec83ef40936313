// Package rules は質問の条件付き表示判定エンジンを提供する。
// 純粋関数のみで構成され、I/Oや外部状態を一切持たない。
package rules

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/hitoshi/formbridge/internal/model"
)

// IsVisible は表示条件セットと現在までの回答から質問を表示するかを判定する。
// 条件セットがnil、または条件リストが空の場合は常に表示する。
func IsVisible(r *model.ConditionalRules, answers model.AnswerMap) bool {
	if r == nil || len(r.Conditions) == 0 {
		return true
	}

	results := make([]bool, 0, len(r.Conditions))
	for _, c := range r.Conditions {
		results = append(results, evaluateCondition(c, answers))
	}

	// logic未指定はANDとして扱い、認識できない値はfail closedでfalseを返す
	logic := r.Logic
	if logic == "" {
		logic = model.LogicAnd
	}

	switch logic {
	case model.LogicAnd:
		for _, ok := range results {
			if !ok {
				return false
			}
		}
		return true
	case model.LogicOr:
		for _, ok := range results {
			if ok {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// evaluateCondition は1条件を回答マップに対して評価する。
func evaluateCondition(c model.Condition, answers model.AnswerMap) bool {
	answer, ok := answers[c.QuestionKey]
	if !ok || answer.IsAbsent() {
		// 回答が存在しない場合、notEqualsのみ「何とも等しくない」として成立する
		return c.Operator == model.OperatorNotEquals
	}

	switch c.Operator {
	case model.OperatorEquals:
		return equals(answer, c.Value)
	case model.OperatorNotEquals:
		return !equals(answer, c.Value)
	case model.OperatorContains:
		return contains(answer, c.Value)
	default:
		slog.Warn("unknown condition operator",
			slog.String("operator", string(c.Operator)),
			slog.String("question_key", c.QuestionKey),
		)
		return false
	}
}

// equals はequals演算子の等価判定を行う。
//   - リスト同士: ソートして順序を無視したマルチセット比較
//   - リストとスカラー: リストへの所属判定
//   - スカラー同士: 大文字小文字を無視した文字列比較
//   - それ以外の組み合わせ: 不成立
func equals(answer, condValue model.Value) bool {
	if ansList, ok := asList(answer); ok {
		if condList, ok := asList(condValue); ok {
			return multisetEqual(ansList, condList)
		}
		if condValue.Kind == model.ValueScalar {
			for _, item := range ansList {
				if item == condValue.Scalar {
					return true
				}
			}
		}
		return false
	}

	if answer.Kind == model.ValueScalar && condValue.Kind == model.ValueScalar {
		return strings.EqualFold(answer.Scalar, condValue.Scalar)
	}

	return false
}

// contains はcontains演算子の包含判定を行う。
//   - リスト: いずれかの要素が比較値に一致（文字列同士は大小無視の部分一致）
//   - スカラー: 大文字小文字を無視した部分文字列一致
//   - それ以外: 不成立
func contains(answer, condValue model.Value) bool {
	if ansList, ok := asList(answer); ok {
		for _, item := range ansList {
			if condValue.Kind == model.ValueScalar {
				if containsFold(item, condValue.Scalar) {
					return true
				}
			}
		}
		return false
	}

	if answer.Kind == model.ValueScalar && condValue.Kind == model.ValueScalar {
		return containsFold(answer.Scalar, condValue.Scalar)
	}

	return false
}

// asList は値をリスト比較用の文字列スライスに変換する。
// 添付リストはURLのリストとして比較される。
func asList(v model.Value) ([]string, bool) {
	switch v.Kind {
	case model.ValueList:
		return v.List, true
	case model.ValueAttachments:
		urls := make([]string, len(v.Attachments))
		for i, a := range v.Attachments {
			urls[i] = a.URL
		}
		return urls, true
	}
	return nil, false
}

// multisetEqual は順序を無視して2つの文字列スライスが等しいかを判定する。
func multisetEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := make([]string, len(a))
	bs := make([]string, len(b))
	copy(as, a)
	copy(bs, b)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// containsFold は大文字小文字を無視した部分文字列一致を判定する。
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
