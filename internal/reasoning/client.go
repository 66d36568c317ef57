// Package reasoning は外部推論サービス（テキスト入力・JSON出力）のクライアントを提供する。
// 出力契約は強制されないため、応答はパッケージ内で防御的にパースする。
package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/pantryman/internal/model"
)

// Resolver はプロンプトを送信してマッチ候補の解決結果を得るインターフェース。
// 応答のパース失敗はエラーではなく空の結果として返す（縮退）。
type Resolver interface {
	Resolve(ctx context.Context, prompt string) ([]model.ResolvedMatch, error)
}

// Client は推論サービスのHTTPクライアント。
// チャット補完形式のエンドポイントを呼び出す。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string // テスト用にエンドポイントを差し替え可能
	apiKey     string
	modelName  string
}

// Config はClientの設定を保持する。
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		modelName:  cfg.Model,
	}
}

// chatRequest はチャット補完APIのリクエストボディ。
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse はチャット補完APIのレスポンスボディ。
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Resolve はプロンプトを推論サービスに送信し、マッチ解決結果を返す。
// サービス呼び出し自体の失敗はエラーとして返すが、応答コンテンツの
// パース失敗は空のマッチリストに縮退する（呼び出し元に伝播しない）。
func (c *Client) Resolve(ctx context.Context, prompt string) ([]model.ResolvedMatch, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model: c.modelName,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("推論サービスの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, model.NewReasoningUnavailableError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("推論サービスがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, model.NewReasoningUnavailableError(fmt.Sprintf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return nil, model.NewReasoningUnavailableError("レスポンスの形式が不正です")
	}
	if len(chat.Choices) == 0 {
		c.logger.Warn("推論サービスの応答にchoicesが含まれていません")
		return nil, nil
	}

	matches, err := ParseMatches(chat.Choices[0].Message.Content)
	if err != nil {
		// パース不能な応答は空の結果に縮退する
		c.logger.Warn("推論サービスの応答を解析できませんでした",
			slog.String("error", err.Error()),
		)
		return nil, nil
	}
	return matches, nil
}
