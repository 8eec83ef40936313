// Package webhookkeeper はAirtable Webhookのキープアライブ処理を提供する。
// Airtableに登録したWebhookは定期的にリフレッシュしないと失効するため、
// フォームが紐付く全ベースのWebhookを周期的にリフレッシュする。
package webhookkeeper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/formbridge/internal/airtable"
	"github.com/hitoshi/formbridge/internal/repository"
)

// WebhookClient はキープアライブに必要なAirtable APIの抽象。
type WebhookClient interface {
	// ListWebhooks はベースに登録されたWebhook一覧を返す。
	ListWebhooks(ctx context.Context, accountID, baseID string) ([]airtable.Webhook, error)
	// RefreshWebhook はWebhookの有効期限を延長する。
	RefreshWebhook(ctx context.Context, accountID, baseID, webhookID string) error
}

// Keeper はWebhookのリフレッシュのスケジューリングと並列制御を行う。
// 周期ティッカーでフォームが紐付く(オーナー, ベース)の組を列挙し、
// semaphoreパターンで最大並列数を制御しながらリフレッシュを実行する。
type Keeper struct {
	formRepo       repository.FormRepository
	client         WebhookClient
	logger         *slog.Logger
	maxConcurrency int
}

// NewKeeper はKeeperの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値5を使用する。
func NewKeeper(
	formRepo repository.FormRepository,
	client WebhookClient,
	logger *slog.Logger,
	maxConcurrency int,
) *Keeper {
	if maxConcurrency <= 0 {
		maxConcurrency = 5
	}
	return &Keeper{
		formRepo:       formRepo,
		client:         client,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start は指定間隔のティッカーでキープアライブを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (k *Keeper) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	k.logger.Info("Webhookキープアライブを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", k.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := k.RunOnce(ctx); err != nil {
		k.logger.Error("Webhookリフレッシュサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			k.logger.Info("Webhookキープアライブを停止しました")
			return
		case <-ticker.C:
			if err := k.RunOnce(ctx); err != nil {
				k.logger.Error("Webhookリフレッシュサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce はフォームが紐付く全ベースのWebhookを1回リフレッシュする。
// ベース単位の失敗はログに残して継続し、サイクル全体は止めない。
func (k *Keeper) RunOnce(ctx context.Context) error {
	start := time.Now()

	bindings, err := k.formRepo.ListBaseBindings(ctx)
	if err != nil {
		return err
	}

	if len(bindings) == 0 {
		k.logger.Info("リフレッシュ対象のベースはありません")
		return nil
	}

	k.logger.Info("Webhookリフレッシュサイクルを開始します",
		slog.Int("base_count", len(bindings)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, k.maxConcurrency)
	var wg sync.WaitGroup

	for _, binding := range bindings {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(b repository.BaseBinding) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			k.refreshBase(ctx, b)
		}(binding)
	}

	wg.Wait()

	k.logger.Info("Webhookリフレッシュサイクルが完了しました",
		slog.Int("base_count", len(bindings)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// refreshBase は1ベースの全Webhookをリフレッシュする。
func (k *Keeper) refreshBase(ctx context.Context, b repository.BaseBinding) {
	webhooks, err := k.client.ListWebhooks(ctx, b.OwnerID, b.AirtableBaseID)
	if err != nil {
		k.logger.Error("Webhook一覧の取得に失敗しました",
			slog.String("base_id", b.AirtableBaseID),
			slog.String("error", err.Error()),
		)
		return
	}

	for _, wh := range webhooks {
		if err := k.client.RefreshWebhook(ctx, b.OwnerID, b.AirtableBaseID, wh.ID); err != nil {
			k.logger.Error("Webhookのリフレッシュに失敗しました",
				slog.String("base_id", b.AirtableBaseID),
				slog.String("webhook_id", wh.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		k.logger.Info("Webhookをリフレッシュしました",
			slog.String("base_id", b.AirtableBaseID),
			slog.String("webhook_id", wh.ID),
			slog.Time("expiration_time", wh.ExpirationTime),
		)
	}
}
