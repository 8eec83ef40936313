package auth

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// handshakeTTL はOAuthハンドシェイク状態の有効期間。
const handshakeTTL = 5 * time.Minute

// Handshake は認可リダイレクトとコールバックを紐付ける一時データ。
type Handshake struct {
	Verifier  string
	CreatedAt time.Time
}

// HandshakeStore はstateキーでハンドシェイク状態を保持するTTL付きストア。
// 読み取り時の遅延失効と定期スイープの両方で期限切れエントリを除去する。
type HandshakeStore struct {
	c *cache.Cache
}

// NewHandshakeStore はHandshakeStoreを生成する。
// スイープは1分間隔で実行される。
func NewHandshakeStore() *HandshakeStore {
	return &HandshakeStore{
		c: cache.New(handshakeTTL, time.Minute),
	}
}

// Put はstateに対応するハンドシェイク状態を保存する。
func (s *HandshakeStore) Put(state, verifier string) {
	s.c.Set(state, Handshake{
		Verifier:  verifier,
		CreatedAt: time.Now(),
	}, cache.DefaultExpiration)
}

// Consume はstateに対応するハンドシェイク状態を取得し、同時に削除する。
// 未知・期限切れ・消費済みのstateはfalseを返す。各stateは厳密に1回だけ消費できる。
func (s *HandshakeStore) Consume(state string) (Handshake, bool) {
	v, found := s.c.Get(state)
	if !found {
		return Handshake{}, false
	}
	s.c.Delete(state)
	hs, ok := v.(Handshake)
	return hs, ok
}

// Len は現在保持しているエントリ数を返す。テストおよびメトリクス用。
func (s *HandshakeStore) Len() int {
	return s.c.ItemCount()
}
