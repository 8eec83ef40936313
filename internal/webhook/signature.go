// Package webhook はAirtableからの変更通知の検証と突合処理を提供する。
// 通知はat-least-once・順序保証なしで届く前提で、冪等に処理する。
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// VerifySignature は受信ボディそのもののバイト列に対するHMAC-SHA256署名を検証する。
// 署名はbase64エンコードされた値との完全一致で判定する。
// secretが空の場合は署名検証なしとして常にtrueを返す。
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" {
		return true
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
