package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/velocityiq/velocityiq-engine/pkg/config"
	"github.com/velocityiq/velocityiq-engine/pkg/models"
	"github.com/velocityiq/velocityiq-engine/pkg/stock"
)

// Caps on how much posture detail goes into the digest prompt.
const (
	digestMaxAlerts   = 15
	digestMaxProducts = 20
)

const digestSystemMessage = "You are an inventory operations analyst. " +
	"Summarize the stock posture and open alerts into a short briefing for an " +
	"operations manager: lead with what needs action today, then notable risks. " +
	"Plain prose, no markdown, at most 150 words."

// InsightsService produces an on-demand operations digest of the current
// stock posture and open alerts. Purely advisory; nothing downstream
// consumes its output.
type InsightsService interface {
	Digest(ctx context.Context) (*models.InsightsDigest, error)
}

// chatCompleter is the slice of the OpenAI client the digest needs.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type insightsService struct {
	dashboard DashboardService
	chat      chatCompleter
	model     string
	logger    *zap.Logger
}

// NewInsightsService creates the digest service, or nil when no API key is
// configured. Callers treat nil as feature-disabled.
func NewInsightsService(dashboard DashboardService, cfg *config.InsightsConfig, logger *zap.Logger) InsightsService {
	if !cfg.DigestEnabled() {
		return nil
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}

	return &insightsService{
		dashboard: dashboard,
		chat:      openai.NewClientWithConfig(clientConfig),
		model:     cfg.Model,
		logger:    logger.Named("insights"),
	}
}

var _ InsightsService = (*insightsService)(nil)

func (s *insightsService) Digest(ctx context.Context) (*models.InsightsDigest, error) {
	rows, err := s.dashboard.StockStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load stock posture: %w", err)
	}
	alerts, err := s.dashboard.Alerts(ctx, digestMaxAlerts)
	if err != nil {
		return nil, fmt.Errorf("failed to load alerts: %w", err)
	}

	prompt := buildDigestPrompt(rows, alerts)

	s.logger.Debug("digest request",
		zap.String("model", s.model),
		zap.Int("prompt_len", len(prompt)))
	start := time.Now()

	resp, err := s.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: digestSystemMessage},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.2,
		MaxTokens:   400,
	})
	if err != nil {
		s.logger.Error("digest request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to generate digest: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("failed to generate digest: no choices in response")
	}

	s.logger.Info("digest generated",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &models.InsightsDigest{
		Digest:      strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:       s.model,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// buildDigestPrompt renders the posture as compact text. Healthy products
// are summarized as a count; only products needing attention are listed.
func buildDigestPrompt(rows []*models.StockStatusRow, alerts []*models.AlertWithContext) string {
	var b strings.Builder

	byStatus := map[stock.Status]int{}
	for _, row := range rows {
		byStatus[row.StockStatus]++
	}
	fmt.Fprintf(&b, "Stock posture: %d products (%d REORDER_NOW, %d LOW_STOCK, %d MONITOR, %d OK).\n",
		len(rows),
		byStatus[stock.StatusReorderNow],
		byStatus[stock.StatusLowStock],
		byStatus[stock.StatusMonitor],
		byStatus[stock.StatusOK])

	listed := 0
	for _, row := range rows {
		if row.StockStatus == stock.StatusOK {
			continue
		}
		if listed >= digestMaxProducts {
			break
		}
		fmt.Fprintf(&b, "- %s (%s): %s, stock %d, reorder point %d, avg daily demand %.1f",
			row.ProductName, row.SKU, row.StockStatus, row.CurrentStock, row.ReorderPoint, row.AvgDailyDemand)
		if row.DaysUntilStockout != nil {
			fmt.Fprintf(&b, ", ~%.1f days of stock left", *row.DaysUntilStockout)
		}
		b.WriteString("\n")
		listed++
	}

	if len(alerts) == 0 {
		b.WriteString("No open alerts.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "Open alerts (%d):\n", len(alerts))
	for _, alert := range alerts {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", alert.Severity, alert.Title, alert.Description)
	}
	return b.String()
}
